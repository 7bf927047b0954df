package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/jasonshaw0/eng-final/internal/audio"
	"github.com/jasonshaw0/eng-final/internal/speech"
)

var (
	showMetrics bool

	generateCmd = &cobra.Command{
		Use:   "generate [DECK]",
		Short: "Generate audio for every slide without playing",
		Long: paragraph(fmt.Sprintf("\n%s the audio cache so a later play starts immediately. "+
			"Slides already cached are not requested again.", keyword("Warms"))),
		Args: cobra.MaximumNArgs(1),
		RunE: runGenerate,
	}
)

func init() {
	generateCmd.Flags().BoolVar(&showMetrics, "metrics", false, "print provider metrics when done")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err := speech.NewMetrics(mp)
	if err != nil {
		return fmt.Errorf("unable to create metrics: %w", err)
	}

	a, err := newApp(cfg, deckArg(args), speech.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := cmd.OutOrStdout()
	printer := newStatusPrinter(out, a.deck, terminalWidth())

	// Nothing is played; the silent player satisfies the orchestrator.
	o, err := a.newOrchestrator(audio.NewMockPlayer(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = o.Close() }()
	o.OnStateChange(printer.Update)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	start := time.Now()
	if err := o.GenerateAll(ctx); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	fmt.Fprintf(out, "%s audio for %d slides in %s\n",
		keyword("Ready:"), len(a.deck), time.Since(start).Round(time.Millisecond))

	if showMetrics {
		return printMetrics(ctx, out, reader)
	}
	return nil
}
