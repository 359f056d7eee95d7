// Package pipeline orchestrates a planning run: ingest the stop sheet,
// resolve addresses, route the legs, compose the map and summary
// image, and package everything into the delivery archive.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/routelab/routeplan-cli/internal/archive"
	"github.com/routelab/routeplan-cli/internal/config"
	"github.com/routelab/routeplan-cli/internal/imagecompose"
	"github.com/routelab/routeplan-cli/internal/ingest"
	"github.com/routelab/routeplan-cli/internal/mapcompose"
	"github.com/routelab/routeplan-cli/internal/model"
	"github.com/routelab/routeplan-cli/internal/store"
	"github.com/routelab/routeplan-cli/pkg/geocode"
)

// Geocoder resolves a free-form address to a coordinate.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (model.Coordinate, error)
}

// Router computes the legs connecting an ordered coordinate sequence.
type Router interface {
	Route(ctx context.Context, coords []model.Coordinate) ([]model.Leg, error)
}

// Flusher persists buffered state. The geocode cache implements it; the
// pipeline flushes after the geocoding stage and again on abort so
// resolutions from a failed run are never lost.
type Flusher interface {
	Flush() error
}

// Event reports stage progress. Sends are best-effort: a slow consumer
// never stalls the run.
type Event struct {
	Stage     string `json:"stage"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Message   string `json:"message,omitempty"`
}

// Request describes one planning run.
type Request struct {
	InputPath  string
	Title      string
	OutputPath string

	// GeneratedAt pins the archive timestamp. Zero means now.
	GeneratedAt time.Time
}

// Planner wires the pipeline stages together.
type Planner struct {
	cfg      *config.Config
	store    store.Store
	geocoder Geocoder
	router   Router
	cache    Flusher
	events   chan<- Event
}

// Option configures a Planner.
type Option func(*Planner)

// WithEvents attaches a progress channel. The planner never blocks on
// it; events a full channel cannot take are dropped.
func WithEvents(ch chan<- Event) Option {
	return func(p *Planner) { p.events = ch }
}

// WithCache attaches a flushable geocode cache.
func WithCache(c Flusher) Option {
	return func(p *Planner) { p.cache = c }
}

// New creates a Planner with all dependencies.
func New(cfg *config.Config, st store.Store, geocoder Geocoder, router Router, opts ...Option) *Planner {
	p := &Planner{
		cfg:      cfg,
		store:    st,
		geocoder: geocoder,
		router:   router,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the full pipeline for one request. The returned result
// is non-nil whenever a run record was created, including on failure.
func (p *Planner) Run(ctx context.Context, req Request) (*model.RunResult, error) {
	log := zap.L().With(zap.String("input", req.InputPath), zap.String("title", req.Title))
	log.Info("pipeline: starting run")

	generatedAt := req.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now().UTC()
	}

	run, err := p.store.CreateRun(ctx, req.Title, req.InputPath)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	result, err := p.execute(ctx, run, req, generatedAt, log)
	if err != nil {
		kind := model.KindOf(err)
		result = &model.RunResult{ErrorKind: string(kind), Error: err.Error()}
		status := model.RunStatusFailed
		if kind == model.KindCancelled {
			status = model.RunStatusCancelled
		}
		if saveErr := p.store.UpdateRunResult(context.WithoutCancel(ctx), run.ID, status, result); saveErr != nil {
			log.Warn("pipeline: failed to save run result", zap.Error(saveErr))
		}
		p.flushCache(log)
		log.Error("pipeline: run failed",
			zap.String("run_id", run.ID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return result, err
	}

	if saveErr := p.store.UpdateRunResult(ctx, run.ID, model.RunStatusComplete, result); saveErr != nil {
		log.Warn("pipeline: failed to save run result", zap.Error(saveErr))
	}
	log.Info("pipeline: run complete",
		zap.String("run_id", run.ID),
		zap.Int("stops", result.StopCount),
		zap.Int("legs", result.LegCount),
		zap.String("archive", result.ArchivePath))
	return result, nil
}

func (p *Planner) execute(ctx context.Context, run *model.Run, req Request, generatedAt time.Time, log *zap.Logger) (*model.RunResult, error) {
	setStatus := func(status model.RunStatus) {
		if err := p.store.UpdateRunStatus(ctx, run.ID, status); err != nil {
			log.Warn("pipeline: failed to update status", zap.Error(err))
		}
	}

	setStatus(model.RunStatusIngesting)
	stops, err := trackStage(p, ctx, run.ID, "ingest", 1, func(progress func(int, string)) ([]model.Stop, error) {
		stops, err := ingest.ReadStops(req.InputPath)
		if err != nil {
			return nil, err
		}
		if len(stops) < 2 {
			return nil, model.NewError(model.KindMalformedInput, req.InputPath,
				eris.Errorf("need at least 2 stops, got %d", len(stops)))
		}
		progress(1, fmt.Sprintf("%d stops", len(stops)))
		return stops, nil
	})
	if err != nil {
		return nil, err
	}

	// Items are resolved sequentially so the provider's rate limit is
	// respected; cancellation is honored between items.
	setStatus(model.RunStatusGeocoding)
	stops, err = trackStage(p, ctx, run.ID, "geocode", len(stops), func(progress func(int, string)) ([]model.Stop, error) {
		for i := range stops {
			if err := ctx.Err(); err != nil {
				return nil, model.NewError(model.KindCancelled, stops[i].Ref(), err)
			}
			s := &stops[i]
			if s.Address == "" {
				return nil, model.NewError(model.KindGeocodeNotFound, s.Ref(),
					eris.New("stop has no address"))
			}
			s.NormalizedAddress = geocode.Normalize(s.Address)
			coord, err := p.geocoder.Resolve(ctx, s.Address)
			if err != nil {
				return nil, itemize(err, s.Ref())
			}
			s.Coord = &coord
			progress(i+1, s.Ref())
		}
		return stops, nil
	})
	p.flushCache(log)
	if err != nil {
		return nil, err
	}

	setStatus(model.RunStatusRouting)
	route, err := trackStage(p, ctx, run.ID, "routing", len(stops)-1, func(progress func(int, string)) (*model.Route, error) {
		coords := make([]model.Coordinate, len(stops))
		for i := range stops {
			coords[i] = *stops[i].Coord
		}
		legs, err := p.router.Route(ctx, coords)
		if err != nil {
			return nil, err
		}
		for i := range legs {
			legs[i].Origin = &stops[i]
			legs[i].Destination = &stops[i+1]
			progress(i+1, legs[i].Ref())
		}
		route := &model.Route{Stops: stops, Legs: legs}
		route.DistanceMeters, route.DurationSeconds = route.Totals()
		return route, nil
	})
	if err != nil {
		return nil, err
	}

	// The map and the summary image render from the same route and do
	// not depend on each other.
	setStatus(model.RunStatusComposing)
	art, err := trackStage(p, ctx, run.ID, "compose", 2, func(progress func(int, string)) (*archive.Artifacts, error) {
		style, err := p.loadStyle()
		if err != nil {
			return nil, err
		}

		var art archive.Artifacts
		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return model.NewError(model.KindCancelled, archive.MemberMap, err)
			}
			html, err := mapcompose.New(style).Compose(route, req.Title, generatedAt)
			if err != nil {
				return err
			}
			art.MapHTML = html
			progress(1, archive.MemberMap)
			return nil
		})
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return model.NewError(model.KindCancelled, archive.MemberSummary, err)
			}
			png, err := imagecompose.New(style, p.cfg.Image.Width, p.cfg.Image.Height).Compose(route, req.Title, generatedAt)
			if err != nil {
				return err
			}
			art.SummaryPNG = png
			progress(2, archive.MemberSummary)
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return &art, nil
	})
	if err != nil {
		return nil, err
	}

	setStatus(model.RunStatusPackaging)
	outPath := req.OutputPath
	if outPath == "" {
		outPath = archive.DefaultPath(p.cfg.Output.Path, req.Title, run.ID)
	}
	_, err = trackStage(p, ctx, run.ID, "package", 1, func(progress func(int, string)) (struct{}, error) {
		if err := ctx.Err(); err != nil {
			return struct{}{}, model.NewError(model.KindCancelled, outPath, err)
		}
		if err := archive.Write(outPath, route, *art, generatedAt); err != nil {
			return struct{}{}, err
		}
		progress(1, outPath)
		return struct{}{}, nil
	})
	if err != nil {
		return nil, err
	}

	return &model.RunResult{
		StopCount:       len(route.Stops),
		LegCount:        len(route.Legs),
		DistanceMeters:  route.DistanceMeters,
		DurationSeconds: route.DurationSeconds,
		ArchivePath:     outPath,
	}, nil
}

// trackStage records a stage row around fn and forwards its progress
// callbacks as events.
func trackStage[T any](p *Planner, ctx context.Context, runID, name string, total int, fn func(progress func(int, string)) (T, error)) (T, error) {
	stage, stageErr := p.store.CreateStage(ctx, runID, name, total)
	if stageErr != nil {
		zap.L().Warn("pipeline: failed to create stage", zap.String("stage", name), zap.Error(stageErr))
	}

	// progress may be called from concurrent goroutines within a stage.
	var mu sync.Mutex
	completed := 0
	progress := func(done int, message string) {
		mu.Lock()
		if done > completed {
			completed = done
		}
		mu.Unlock()
		p.emit(Event{Stage: name, Completed: done, Total: total, Message: message})
	}

	start := time.Now()
	out, err := fn(progress)
	duration := time.Since(start)

	if stage != nil {
		status := model.StageStatusComplete
		errMsg := ""
		if err != nil {
			status = model.StageStatusFailed
			errMsg = err.Error()
		}
		completeCtx := context.WithoutCancel(ctx)
		if completeErr := p.store.CompleteStage(completeCtx, stage.ID, status, completed, errMsg); completeErr != nil {
			zap.L().Warn("pipeline: failed to complete stage", zap.String("stage", name), zap.Error(completeErr))
		}
	}

	if err != nil {
		zap.L().Error("pipeline: stage failed",
			zap.String("stage", name),
			zap.Duration("duration", duration),
			zap.Error(err))
		return out, err
	}
	zap.L().Info("pipeline: stage complete",
		zap.String("stage", name),
		zap.Int("items", completed),
		zap.Duration("duration", duration))
	return out, nil
}

func (p *Planner) emit(ev Event) {
	if p.events == nil {
		return
	}
	select {
	case p.events <- ev:
	default:
	}
}

func (p *Planner) flushCache(log *zap.Logger) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Flush(); err != nil {
		log.Warn("pipeline: cache flush failed", zap.Error(err))
	}
}

// itemize attaches the stop reference to typed errors that lack one.
func itemize(err error, item string) error {
	var pe *model.PipelineError
	if errors.As(err, &pe) && pe.Item == "" {
		pe.Item = item
	}
	return err
}

func (p *Planner) loadStyle() (mapcompose.Style, error) {
	style := mapcompose.DefaultStyle()
	if p.cfg.Map.StylePath != "" {
		loaded, err := mapcompose.LoadStyle(p.cfg.Map.StylePath)
		if err != nil {
			return mapcompose.Style{}, model.NewError(model.KindMalformedInput, p.cfg.Map.StylePath, err)
		}
		style = loaded
	}
	if p.cfg.Map.TileURL != "" {
		style.TileURL = p.cfg.Map.TileURL
	}
	return style, nil
}
