package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/routelab/routeplan-cli/pkg/geocode"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the geocode cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache location and entry count",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := geocode.OpenCache(cfg.Cache.Path)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"path":    cfg.Cache.Path,
			"entries": cache.Len(),
		})
	},
}

var cacheFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Rewrite the cache file from the in-memory state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := geocode.OpenCache(cfg.Cache.Path)
		if err != nil {
			return err
		}
		if err := cache.Flush(); err != nil {
			return err
		}
		zap.L().Info("cache flushed", zap.String("path", cfg.Cache.Path), zap.Int("entries", cache.Len()))
		return nil
	},
}

var cacheRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Reload the cache file, dropping unreadable lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := geocode.OpenCache(cfg.Cache.Path)
		if err != nil {
			return err
		}
		if err := cache.Rebuild(); err != nil {
			return err
		}
		zap.L().Info("cache rebuilt", zap.String("path", cfg.Cache.Path), zap.Int("entries", cache.Len()))
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd, cacheFlushCmd, cacheRebuildCmd)
	rootCmd.AddCommand(cacheCmd)
}
