// Package dispatcher drives the main scan loop from §4.4: draw a
// batch of candidates, admit them through the rate limiter, fan them
// out through a bounded worker pool, and route completions to the
// Enricher, Result Sink, and Statistics Aggregator.
package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/sirupsen/logrus"

	"mcslp/backend/address"
	"mcslp/backend/control"
	"mcslp/backend/enrich"
	"mcslp/backend/prober"
	"mcslp/backend/ratelimit"
	"mcslp/backend/sink"
	"mcslp/backend/stats"
)

// Config carries the run-time knobs the Dispatcher needs; it is a
// narrowed view of backend/config.Config so this package doesn't
// depend on the config package directly.
type Config struct {
	BatchSize     int
	MaxConcurrent int
	MaxScans      *int64
	MinPlayers    int
	MaxPlayers    int
}

// Dispatcher owns the main scan loop. Per SPEC_FULL §5 it uses the
// parallel-threaded variant: ants/v2 bounds in-flight goroutines, and
// every shared collaborator (Seen, Limiter, Stats) is already
// internally synchronized.
type Dispatcher struct {
	cfg Config

	Generator *address.Generator
	Limiter   *ratelimit.Limiter
	Prober    *prober.Prober
	Enricher  *enrich.Enricher
	Sink      *sink.Sink
	Stats     *stats.Stats
	Control   *control.Surface
	Logger    *logrus.Logger

	active int64

	lastFoundMu  sync.Mutex
	lastFound    address.Address
	hasLastFound bool
}

func New(cfg Config, gen *address.Generator, limiter *ratelimit.Limiter, pr *prober.Prober, enricher *enrich.Enricher, snk *sink.Sink, st *stats.Stats, ctl *control.Surface, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Dispatcher{
		cfg: cfg, Generator: gen, Limiter: limiter, Prober: pr,
		Enricher: enricher, Sink: snk, Stats: st, Control: ctl, Logger: logger,
	}
}

type scanTask struct {
	addr          address.Address
	correlationID string
}

// Run executes the main loop until Control signals stop, ctx is
// cancelled, or maxScans is reached, per §4.4.
func (d *Dispatcher) Run(ctx context.Context) error {
	poolSize := d.cfg.MaxConcurrent
	if poolSize <= 0 {
		poolSize = 1
	}
	pool, err := ants.NewPoolWithFunc(poolSize, func(item interface{}) {
		task := item.(scanTask)
		d.runOne(ctx, task)
	})
	if err != nil {
		return err
	}
	defer pool.Release()

	go d.autoTune(ctx, pool)

	batchSize := d.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	var lastMaintenance uint64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.Control != nil && d.Control.ShouldStop() {
			return nil
		}
		if d.cfg.MaxScans != nil {
			snap := d.Stats.Snapshot()
			if snap.TotalScanned >= uint64(*d.cfg.MaxScans) {
				return nil
			}
		}
		if d.Control != nil && d.Control.Paused() {
			time.Sleep(time.Second)
			continue
		}

		admitted := d.drawBatch(batchSize)
		for _, addr := range admitted {
			if atomic.LoadInt64(&d.active) >= int64(poolSize) {
				break // cap reached within this batch, per §4.4 step 3
			}
			atomic.AddInt64(&d.active, 1)
			d.Stats.IncActive(1)
			d.Stats.IncScanned()
			task := scanTask{addr: addr, correlationID: uuid.NewString()}
			if err := pool.Invoke(task); err != nil {
				atomic.AddInt64(&d.active, -1)
				d.Stats.IncActive(-1)
				d.Logger.WithError(err).Warn("pool invoke failed")
			}
		}

		snap := d.Stats.Snapshot()
		if snap.TotalScanned < lastMaintenance {
			lastMaintenance = snap.TotalScanned // counters were reset
		}
		if snap.TotalScanned-lastMaintenance >= control.MaintenanceEveryNScans {
			lastMaintenance = snap.TotalScanned
			if d.Control != nil {
				d.Control.Maintenance(d.Limiter.Reap)
			}
		}

		time.Sleep(10 * time.Millisecond)
	}
}

// drawBatch implements §4.4 step 2: draw up to batchSize candidates,
// admitting each through the rate limiter and skipping ones already
// in the seen-set.
func (d *Dispatcher) drawBatch(batchSize int) []address.Address {
	out := make([]address.Address, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		addr, ok := d.Generator.Next()
		if !ok {
			break
		}
		if d.Sink.Seen.Contains(addr) {
			continue
		}
		if !d.Limiter.Admit(addr) {
			continue
		}
		out = append(out, addr)
	}
	return out
}

func (d *Dispatcher) runOne(ctx context.Context, task scanTask) {
	defer atomic.AddInt64(&d.active, -1)
	defer d.Stats.IncActive(-1)

	log := d.Logger.WithField("correlationId", task.correlationID).WithField("address", task.addr.String())
	log.Debug("probe starting")

	outcome := d.Prober.ProbeWithRetry(ctx, task.addr, func(attempt int) {
		if blacklisted := d.Limiter.RecordAttemptFailure(task.addr); blacklisted {
			log.WithField("attempt", attempt).Info("address blacklisted after retry exhaustion")
		}
	})
	d.Stats.RecordResponseTime(outcome.ResponseTimeMs)

	switch outcome.Kind {
	case prober.NoResponse:
		d.Stats.IncTimeout()
		log.Debug("probe no response")
		return
	case prober.Malformed:
		d.Stats.IncError()
		log.Debug("probe malformed response")
		return
	case prober.ServerFound:
		d.handleFound(ctx, task.addr, outcome, log)
	}
}

func (d *Dispatcher) handleFound(ctx context.Context, addr address.Address, outcome prober.Outcome, log *logrus.Entry) {
	es := d.Enricher.Enrich(ctx, addr, d.Prober.Port, outcome.Status, outcome.ResponseTimeMs, time.Now())

	if !d.Enricher.PassesFilters(es, d.cfg.MinPlayers, d.cfg.MaxPlayers) {
		log.Debug("server filtered out")
		return
	}

	if err := d.Sink.Append(es); err != nil {
		log.WithError(err).Error("sink append failed")
		return
	}
	d.Stats.RecordFound(es)
	d.lastFoundMu.Lock()
	d.lastFound = addr
	d.hasLastFound = true
	d.lastFoundMu.Unlock()
	log.WithField("version", es.Version).Info("server found")
}

// LastFound satisfies address.LastFoundFunc for the cluster draw
// sub-strategy. Called from the main dispatch-loop goroutine while
// handleFound writes from pool worker goroutines, so both sides go
// through lastFoundMu.
func (d *Dispatcher) LastFound() (address.Address, bool) {
	d.lastFoundMu.Lock()
	defer d.lastFoundMu.Unlock()
	return d.lastFound, d.hasLastFound
}

// autoTune samples CPU load and shrinks/grows the worker pool,
// grounded on the teacher's concurrencyManager CPU-driven scaling
// (scanner/gogo/concurrency.go's sampleCPU), using gopsutil/v4 instead
// of a platform-specific syscall wrapper.
func (d *Dispatcher) autoTune(ctx context.Context, pool *ants.PoolWithFunc) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	baseline := pool.Cap()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			percents, err := cpu.PercentWithContext(ctx, time.Second, false)
			if err != nil || len(percents) == 0 {
				continue
			}
			load := percents[0]
			switch {
			case load > 90 && pool.Cap() > baseline/4:
				pool.Tune(pool.Cap() - pool.Cap()/10)
			case load < 50 && pool.Cap() < baseline:
				pool.Tune(pool.Cap() + pool.Cap()/10)
			}
		}
	}
}
