package telemetry

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
)

// The collector daemon runs unattended for months between deploys;
// these gauges make a leaking scrape loop or a stuck browser visible
// long before the host complains.
var perfMeter = otel.Meter("cocos_collector.perf")
var cpuGauge, _ = perfMeter.Float64Gauge("cpu_usage_percent")
var heapGauge, _ = perfMeter.Int64Gauge("heap_allocated_mb")
var liveObjectsGauge, _ = perfMeter.Int64Gauge("live_objects")
var goroutineGauge, _ = perfMeter.Int64Gauge("goroutine_count")

const perfSampleInterval = 30 * time.Second

// InstrumentPerfStats samples process health in the background until
// ctx is cancelled.
func InstrumentPerfStats(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(perfSampleInterval)
		defer ticker.Stop()

		var memStats runtime.MemStats
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runtime.ReadMemStats(&memStats)
				heapGauge.Record(ctx, int64(memStats.Alloc/1_000_000))
				liveObjectsGauge.Record(ctx, int64(memStats.Mallocs-memStats.Frees))
				goroutineGauge.Record(ctx, int64(runtime.NumGoroutine()))

				// interval 0 reports usage since the previous call
				// without blocking the sampler
				usage, err := cpu.Percent(0, false)
				if err != nil {
					slog.Warn("failed to read cpu usage", "err", err)
					continue
				}
				cpuGauge.Record(ctx, usage[0])
			}
		}
	}()
}
