package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/routelab/routeplan-cli/internal/pipeline"
)

var (
	planInput  string
	planOutput string
	planTitle  string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan a route from a stop spreadsheet",
	Long:  "Reads stops from a CSV or XLSX file, resolves and routes them, and writes the delivery archive.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		events := make(chan pipeline.Event, 256)
		env, err := initPlanEnv(ctx, events)
		if err != nil {
			return err
		}
		defer env.Close()

		go func() {
			for ev := range events {
				zap.L().Info("progress",
					zap.String("stage", ev.Stage),
					zap.Int("completed", ev.Completed),
					zap.Int("total", ev.Total),
					zap.String("item", ev.Message))
			}
		}()

		title := planTitle
		if title == "" {
			title = "Route plan"
		}

		result, err := env.Planner.Run(ctx, pipeline.Request{
			InputPath:  planInput,
			Title:      title,
			OutputPath: planOutput,
		})
		close(events)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	planCmd.Flags().StringVar(&planInput, "input", "", "stop spreadsheet, .csv or .xlsx (required)")
	planCmd.Flags().StringVar(&planOutput, "output", "", "archive path (default derived from title)")
	planCmd.Flags().StringVar(&planTitle, "title", "", "run title shown on the map and image")
	_ = planCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(planCmd)
}
