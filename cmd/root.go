package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/routelab/routeplan-cli/internal/config"
	"github.com/routelab/routeplan-cli/internal/model"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "routeplan",
	Short: "Multi-stop route planning and mapping pipeline",
	Long:  "Reads a stop spreadsheet, geocodes addresses, routes the legs, and packages an interactive map, summary image, and data sheets into a single archive.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// exitCodeFor maps a failure to the process exit code: 2 bad input,
// 3 unresolvable address, 4 no route, 5 provider or cache fault,
// 6 cancelled, 1 anything else.
func exitCodeFor(err error) int {
	switch model.KindOf(err) {
	case model.KindMalformedInput:
		return 2
	case model.KindGeocodeNotFound:
		return 3
	case model.KindRoutingNoRoute:
		return 4
	case model.KindGeocodeUnavailable, model.KindGeocodeRateLimited,
		model.KindRoutingUnavailable, model.KindRoutingInconsistent,
		model.KindPolylineMalformed, model.KindCacheUnavailable:
		return 5
	case model.KindCancelled:
		return 6
	default:
		return 1
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}
