// Package observability reports process-level health signals.
package observability

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Heartbeat periodically logs RSS and CPU usage of the running process.
// It is advisory only and never interferes with core operations.
type Heartbeat struct {
	log      *slog.Logger
	interval time.Duration
}

func NewHeartbeat(log *slog.Logger, interval time.Duration) *Heartbeat {
	return &Heartbeat{log: log, interval: interval}
}

// Run loops until the context is cancelled, emitting one stats line per tick.
func (h *Heartbeat) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			memInfo, err := p.MemoryInfo()
			if err != nil {
				h.log.Error("Failed to collect memory stats", "err", err)
				continue
			}
			cpuPercent, err := p.CPUPercent()
			if err != nil {
				h.log.Error("Failed to collect CPU stats", "err", err)
				continue
			}
			h.log.Info("Heartbeat",
				"rss_mb", memInfo.RSS/(1<<20),
				"cpu_percent", cpuPercent)
		}
	}
}
