package main

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"github.com/jasonshaw0/eng-final/internal/cache"
)

var scriptsCmd = &cobra.Command{
	Use:   "scripts [DECK]",
	Short: "List the narration for each slide",
	Long: paragraph(fmt.Sprintf("\n%s every slide with its segment count, cache key and, when cached, "+
		"the size and length of its audio.", keyword("Lists"))),
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, deckArg(args))
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		out := cmd.OutOrStdout()
		for i, s := range a.deck {
			fmt.Fprintln(out, slideStyle.Render(slideHeading(a.deck, i)))

			detail := fmt.Sprintf("  %s, %s, %s",
				english.Plural(len(s.Segments), "segment", "segments"),
				english.Plural(utf8.RuneCountInString(s.FullText), "char", "chars"),
				cache.Fingerprint(s.FullText))
			if a.audio != nil {
				if art, ok := a.audio.Get(s.FullText); ok {
					detail += fmt.Sprintf(", cached %s (%s)",
						humanize.Bytes(uint64(art.Len())), art.Duration().Round(100*time.Millisecond)) //nolint:gosec
				} else {
					detail += ", not cached"
				}
			}
			fmt.Fprintln(out, faintStyle.Render(detail))
		}
		return nil
	},
}
