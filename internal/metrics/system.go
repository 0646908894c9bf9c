package metrics

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SystemMetrics reports host-level CPU, memory, disk and network usage.
//
// Every reading is taken on collection; one the platform cannot answer (for
// example load average on Windows) is skipped without failing the others.
type SystemMetrics struct {
	cpuUtilization metric.Float64ObservableGauge
	loadAvg1       metric.Float64ObservableGauge

	memTotal       metric.Int64ObservableGauge
	memUsed        metric.Int64ObservableGauge
	memUtilization metric.Float64ObservableGauge

	diskTotal       metric.Int64ObservableGauge
	diskUsed        metric.Int64ObservableGauge
	diskUtilization metric.Float64ObservableGauge

	netBytesSent metric.Int64ObservableCounter
	netBytesRecv metric.Int64ObservableCounter

	uptime metric.Int64ObservableGauge

	diskPath     string
	registration metric.Registration
}

// SystemMetricsConfig configures host metrics collection.
type SystemMetricsConfig struct {
	DiskPath string // Path to monitor disk usage (default: "/")
}

// NewSystemMetrics registers the host instruments on meter.
//
// Example:
//
//	systemMetrics, err := metrics.NewSystemMetrics(meter, metrics.SystemMetricsConfig{DiskPath: "/data"})
//
// Production recommendations:
//   - Disable in containers where the host view is misleading (see
//     hellotrace.InitOptions.DisableSystemMetrics).
func NewSystemMetrics(meter metric.Meter, cfg SystemMetricsConfig) (*SystemMetrics, error) {
	if cfg.DiskPath == "" {
		cfg.DiskPath = "/"
	}
	sm := &SystemMetrics{diskPath: cfg.DiskPath}
	var err error

	if sm.cpuUtilization, err = meter.Float64ObservableGauge("system.cpu.utilization",
		metric.WithDescription("CPU utilization across all cores"), metric.WithUnit("1")); err != nil {
		return nil, err
	}
	if sm.loadAvg1, err = meter.Float64ObservableGauge("system.cpu.load_average.1m",
		metric.WithDescription("System load average over 1 minute"), metric.WithUnit("1")); err != nil {
		return nil, err
	}
	if sm.memTotal, err = meter.Int64ObservableGauge("system.memory.total",
		metric.WithDescription("Total system memory"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if sm.memUsed, err = meter.Int64ObservableGauge("system.memory.used",
		metric.WithDescription("Used system memory"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if sm.memUtilization, err = meter.Float64ObservableGauge("system.memory.utilization",
		metric.WithDescription("Memory utilization"), metric.WithUnit("1")); err != nil {
		return nil, err
	}
	if sm.diskTotal, err = meter.Int64ObservableGauge("system.disk.total",
		metric.WithDescription("Total disk space"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if sm.diskUsed, err = meter.Int64ObservableGauge("system.disk.used",
		metric.WithDescription("Used disk space"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if sm.diskUtilization, err = meter.Float64ObservableGauge("system.disk.utilization",
		metric.WithDescription("Disk utilization"), metric.WithUnit("1")); err != nil {
		return nil, err
	}
	if sm.netBytesSent, err = meter.Int64ObservableCounter("system.network.io.transmit",
		metric.WithDescription("Bytes sent on all interfaces"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if sm.netBytesRecv, err = meter.Int64ObservableCounter("system.network.io.receive",
		metric.WithDescription("Bytes received on all interfaces"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if sm.uptime, err = meter.Int64ObservableGauge("system.uptime",
		metric.WithDescription("Host uptime"), metric.WithUnit("s")); err != nil {
		return nil, err
	}

	sm.registration, err = meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			sm.collect(ctx, o)
			return nil
		},
		sm.cpuUtilization, sm.loadAvg1,
		sm.memTotal, sm.memUsed, sm.memUtilization,
		sm.diskTotal, sm.diskUsed, sm.diskUtilization,
		sm.netBytesSent, sm.netBytesRecv,
		sm.uptime,
	)
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// Unregister stops reporting.
func (sm *SystemMetrics) Unregister() error {
	return sm.registration.Unregister()
}

func (sm *SystemMetrics) collect(ctx context.Context, o metric.Observer) {
	if percent, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percent) > 0 {
		o.ObserveFloat64(sm.cpuUtilization, percent[0]/100)
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		o.ObserveFloat64(sm.loadAvg1, avg.Load1)
	}

	if v, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		o.ObserveInt64(sm.memTotal, int64(v.Total))
		o.ObserveInt64(sm.memUsed, int64(v.Used))
		o.ObserveFloat64(sm.memUtilization, v.UsedPercent/100)
	}

	if usage, err := disk.UsageWithContext(ctx, sm.diskPath); err == nil {
		attrs := metric.WithAttributes(attribute.String("system.filesystem.mountpoint", sm.diskPath))
		o.ObserveInt64(sm.diskTotal, int64(usage.Total), attrs)
		o.ObserveInt64(sm.diskUsed, int64(usage.Used), attrs)
		o.ObserveFloat64(sm.diskUtilization, usage.UsedPercent/100, attrs)
	}

	if counters, err := net.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		o.ObserveInt64(sm.netBytesSent, int64(counters[0].BytesSent))
		o.ObserveInt64(sm.netBytesRecv, int64(counters[0].BytesRecv))
	}

	if up, err := host.UptimeWithContext(ctx); err == nil {
		o.ObserveInt64(sm.uptime, int64(up))
	}
}
