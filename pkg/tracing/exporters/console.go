package exporters

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/sdk/trace"
)

// ConsoleExporter drops spans. It keeps a count so local runs and tests can see that spans were produced.
type ConsoleExporter struct {
	exported atomic.Int64
}

func (c *ConsoleExporter) ExportSpans(ctx context.Context, spans []trace.ReadOnlySpan) error {
	c.exported.Add(int64(len(spans)))
	return nil
}

func (c *ConsoleExporter) Shutdown(ctx context.Context) error {
	return nil
}

// Exported returns how many spans have been handed to the exporter.
func (c *ConsoleExporter) Exported() int64 {
	return c.exported.Load()
}
