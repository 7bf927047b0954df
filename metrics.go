package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// printMetrics writes one line per collected instrument: counter totals and
// histogram count and mean.
func printMetrics(ctx context.Context, w io.Writer, reader *sdkmetric.ManualReader) error {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("unable to collect metrics: %w", err)
	}

	var lines []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if line, ok := metricLine(m); ok {
				lines = append(lines, line)
			}
		}
	}
	sort.Strings(lines)

	for _, l := range lines {
		if _, err := fmt.Fprintln(w, faintStyle.Render(l)); err != nil {
			return err
		}
	}
	return nil
}

func metricLine(m metricdata.Metrics) (string, bool) {
	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		var total int64
		for _, dp := range data.DataPoints {
			total += dp.Value
		}
		return fmt.Sprintf("%s %d", m.Name, total), true
	case metricdata.Histogram[float64]:
		var (
			count uint64
			sum   float64
		)
		for _, dp := range data.DataPoints {
			count += dp.Count
			sum += dp.Sum
		}
		if count == 0 {
			return fmt.Sprintf("%s count=0", m.Name), true
		}
		return fmt.Sprintf("%s count=%d mean=%.2f%s", m.Name, count, sum/float64(count), m.Unit), true
	default:
		return "", false
	}
}
