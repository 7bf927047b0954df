package main

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the audio cache",
		Args:  cobra.NoArgs,
	}

	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show audio cache size and entry count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openCacheApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			st := a.store.LevelStats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", keyword("Directory:"), a.cfg.Cache.Dir)
			fmt.Fprintf(out, "%s %s, %s\n", keyword("Disk:"),
				english.Plural(int(st.L2.ItemCount), "entry", "entries"),
				humanize.Bytes(uint64(st.L2.Size))) //nolint:gosec
			if st.L1.Capacity > 0 {
				fmt.Fprintf(out, "%s %s capacity\n", keyword("Memory:"),
					humanize.Bytes(uint64(st.L1.Capacity))) //nolint:gosec
			} else {
				fmt.Fprintf(out, "%s disabled\n", keyword("Memory:"))
			}
			return nil
		},
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached audio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openCacheApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			before := a.store.LevelStats().L2
			if err := a.store.Clear(); err != nil {
				return fmt.Errorf("unable to clear cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s (%s)\n",
				english.Plural(int(before.ItemCount), "entry", "entries"),
				humanize.Bytes(uint64(before.Size))) //nolint:gosec
			return nil
		},
	}
)

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
}

// openCacheApp opens only the cache, so a broken deck does not block cache
// maintenance. It works even when caching is disabled for playback.
func openCacheApp() (*app, error) {
	a := &app{cfg: cfg, logger: log.Default()}
	if err := a.openCache(); err != nil {
		return nil, err
	}
	return a, nil
}
