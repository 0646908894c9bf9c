package metrics

import (
	"context"
	"runtime"
	"syscall"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeMetrics reports the state of the server's Go process: CPU time, heap,
// garbage collection and goroutines.
//
// All instruments are asynchronous and read from a single callback on every
// collection, so there is nothing to update by hand. Cumulative values (CPU
// time, allocations, GC cycles) are observed as totals since process start.
type RuntimeMetrics struct {
	cpuUser   metric.Float64ObservableCounter
	cpuSystem metric.Float64ObservableCounter

	heapAlloc   metric.Int64ObservableGauge
	heapInuse   metric.Int64ObservableGauge
	heapObjects metric.Int64ObservableGauge
	stackInuse  metric.Int64ObservableGauge
	totalAlloc  metric.Int64ObservableCounter

	gcCount      metric.Int64ObservableCounter
	gcPauseTotal metric.Int64ObservableCounter
	nextGC       metric.Int64ObservableGauge

	goroutines metric.Int64ObservableGauge

	registration metric.Registration
}

// NewRuntimeMetrics registers the Go runtime instruments on meter.
//
// Example:
//
//	runtimeMetrics, err := metrics.NewRuntimeMetrics(meter)
//	if err != nil {
//	    return fmt.Errorf("failed to create runtime metrics: %w", err)
//	}
//	defer runtimeMetrics.Unregister()
//
// Production recommendations:
//   - Create once per meter; a second registration reports every value twice.
func NewRuntimeMetrics(meter metric.Meter) (*RuntimeMetrics, error) {
	rm := &RuntimeMetrics{}
	var err error

	if rm.cpuUser, err = meter.Float64ObservableCounter("go.cpu.user",
		metric.WithDescription("User CPU time used by the process"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if rm.cpuSystem, err = meter.Float64ObservableCounter("go.cpu.system",
		metric.WithDescription("System CPU time used by the process"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if rm.heapAlloc, err = meter.Int64ObservableGauge("go.memory.heap.alloc",
		metric.WithDescription("Bytes of allocated heap objects"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if rm.heapInuse, err = meter.Int64ObservableGauge("go.memory.heap.inuse",
		metric.WithDescription("Bytes in in-use heap spans"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if rm.heapObjects, err = meter.Int64ObservableGauge("go.memory.heap.objects",
		metric.WithDescription("Number of allocated heap objects"), metric.WithUnit("{object}")); err != nil {
		return nil, err
	}
	if rm.stackInuse, err = meter.Int64ObservableGauge("go.memory.stack.inuse",
		metric.WithDescription("Bytes in stack spans"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if rm.totalAlloc, err = meter.Int64ObservableCounter("go.memory.alloc.total",
		metric.WithDescription("Cumulative bytes allocated for heap objects"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if rm.gcCount, err = meter.Int64ObservableCounter("go.gc.count",
		metric.WithDescription("Completed GC cycles"), metric.WithUnit("{gc}")); err != nil {
		return nil, err
	}
	if rm.gcPauseTotal, err = meter.Int64ObservableCounter("go.gc.pause.total",
		metric.WithDescription("Cumulative stop-the-world pause time"), metric.WithUnit("ns")); err != nil {
		return nil, err
	}
	if rm.nextGC, err = meter.Int64ObservableGauge("go.gc.heap.goal",
		metric.WithDescription("Heap size target of the next GC cycle"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if rm.goroutines, err = meter.Int64ObservableGauge("go.goroutines",
		metric.WithDescription("Number of goroutines that currently exist"), metric.WithUnit("{goroutine}")); err != nil {
		return nil, err
	}

	rm.registration, err = meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			rm.collect(o)
			return nil
		},
		rm.cpuUser, rm.cpuSystem,
		rm.heapAlloc, rm.heapInuse, rm.heapObjects, rm.stackInuse, rm.totalAlloc,
		rm.gcCount, rm.gcPauseTotal, rm.nextGC,
		rm.goroutines,
	)
	if err != nil {
		return nil, err
	}

	return rm, nil
}

// Unregister stops reporting. The instruments stay registered on the meter.
func (rm *RuntimeMetrics) Unregister() error {
	return rm.registration.Unregister()
}

func (rm *RuntimeMetrics) collect(o metric.Observer) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	o.ObserveInt64(rm.heapAlloc, int64(m.HeapAlloc))
	o.ObserveInt64(rm.heapInuse, int64(m.HeapInuse))
	o.ObserveInt64(rm.heapObjects, int64(m.HeapObjects))
	o.ObserveInt64(rm.stackInuse, int64(m.StackInuse))
	o.ObserveInt64(rm.totalAlloc, int64(m.TotalAlloc))

	o.ObserveInt64(rm.gcCount, int64(m.NumGC))
	o.ObserveInt64(rm.gcPauseTotal, int64(m.PauseTotalNs))
	o.ObserveInt64(rm.nextGC, int64(m.NextGC))

	o.ObserveInt64(rm.goroutines, int64(runtime.NumGoroutine()))

	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err == nil {
		o.ObserveFloat64(rm.cpuUser, float64(rusage.Utime.Sec)+float64(rusage.Utime.Usec)/1e6)
		o.ObserveFloat64(rm.cpuSystem, float64(rusage.Stime.Sec)+float64(rusage.Stime.Usec)/1e6)
	}
}
