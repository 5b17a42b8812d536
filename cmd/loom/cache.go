package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/DocLoom/internal/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and control the query caches",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Per-cache hit/miss/eviction counters",
	Run: func(cmd *cobra.Command, args []string) {
		stats := cacheManager.Stats()
		if jsonOutput {
			_ = outputJSON(map[string]any{"enabled": cacheManager.Enabled(), "caches": stats})
			return
		}
		fmt.Printf("Caching enabled: %v\n", cacheManager.Enabled())
		for name, s := range stats {
			fmt.Printf("  %-14s size=%d hits=%d misses=%d evictions=%d expirations=%d\n",
				name, s.Size, s.Hits, s.Misses, s.Evictions, s.Expirations)
		}
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached entry",
	Run: func(cmd *cobra.Command, args []string) {
		cacheManager.ClearAll()
		if jsonOutput {
			_ = outputJSON(map[string]any{"cleared": true})
			return
		}
		fmt.Println("Caches cleared.")
	},
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Evict expired entries",
	Run: func(cmd *cobra.Command, args []string) {
		n := cacheManager.Cleanup()
		if jsonOutput {
			_ = outputJSON(map[string]any{"evicted": n})
			return
		}
		fmt.Printf("Evicted %d expired entr%s\n", n, plural(n, "y", "ies"))
	},
}

// setCacheEnabledCmd builds the enable/disable pair; the choice is persisted
// to the config file.
func setCacheEnabledCmd(use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Run: func(cmd *cobra.Command, args []string) {
			cacheManager.SetEnabled(enabled)
			config.Set("cache.enabled", enabled)
			if err := config.Save(); err != nil {
				fail(fmt.Errorf("cannot persist setting: %w", err))
			}
			if jsonOutput {
				_ = outputJSON(map[string]any{"enabled": enabled})
				return
			}
			fmt.Printf("Caching %sd.\n", use)
		},
	}
}

var cacheFlushAccessCmd = &cobra.Command{
	Use:   "flush-access",
	Short: "Flush buffered document access counts to the store",
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := getStore(cmd.Context()); err != nil {
			fail(err)
		}
		pending := accessBuffer.Pending()
		if err := accessBuffer.Flush(cmd.Context()); err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"flushed": pending})
			return
		}
		fmt.Printf("Flushed %d pending access count(s)\n", pending)
	},
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cacheCleanupCmd,
		cacheFlushAccessCmd,
		setCacheEnabledCmd("enable", "Turn caching on", true),
		setCacheEnabledCmd("disable", "Turn caching off", false))
	rootCmd.AddCommand(cacheCmd)
}
