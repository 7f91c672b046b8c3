// Package control implements the Control Surface: the pause / resume
// / stop / resetStats / saveProgress / maintenance operations exposed
// to external collaborators (dashboard, signal handlers), modeled as
// a message channel per §9's "Event-driven control flow" design note.
package control

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"

	"mcslp/backend/sink"
	"mcslp/backend/stats"
)

// Command is one control-channel message, per §6's keystroke mapping
// (P/S/R/Q/Ctrl-C) and §4.8's operation list.
type Command int

const (
	CommandPauseToggle Command = iota
	CommandSaveProgress
	CommandResetStats
	CommandStop
)

// Saver persists a statistics snapshot and configuration, implemented
// by the Application facade (config.Save + session-stats write). The
// two files are written one after the other, not atomically.
type Saver interface {
	SaveProgress(snap stats.Snapshot) error
}

// Surface is the Control Surface. The dispatcher polls Paused()/
// ShouldStop() at the safe points named in §4.4 step 1 and step 6;
// everything else is driven by messages sent to Commands().
type Surface struct {
	commands chan Command
	paused   chan bool // buffered size-1 "mailbox" holding current state
	stop     chan struct{}
	stopped  bool

	stats *stats.Stats
	seen  *sink.SeenSet
	saver Saver
	log   *logrus.Logger
}

func New(st *stats.Stats, seen *sink.SeenSet, saver Saver, log *logrus.Logger) *Surface {
	if log == nil {
		log = logrus.New()
	}
	s := &Surface{
		commands: make(chan Command, 16),
		paused:   make(chan bool, 1),
		stop:     make(chan struct{}),
		stats:    st,
		seen:     seen,
		saver:    saver,
		log:      log,
	}
	s.paused <- false
	return s
}

// Commands exposes the channel so signal handlers / keystroke readers
// can post commands without depending on Surface's internals.
func (s *Surface) Commands() chan<- Command {
	return s.commands
}

// Run owns the command loop; Application.Run starts it in the
// background, or the caller can drain Commands() itself. Either
// way, mutation of paused/stop state happens only here.
func (s *Surface) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.commands:
			s.handle(cmd)
		}
	}
}

func (s *Surface) handle(cmd Command) {
	switch cmd {
	case CommandPauseToggle:
		cur := <-s.paused
		s.paused <- !cur
		s.log.WithField("paused", !cur).Info("pause toggled")
	case CommandSaveProgress:
		s.SaveProgress()
	case CommandResetStats:
		s.stats.ResetVolatile()
		s.log.Info("stats reset")
	case CommandStop:
		s.Stop()
	}
}

// Paused is idempotent and safe to call from the dispatcher's hot
// path; it does not block on the command loop.
func (s *Surface) Paused() bool {
	cur := <-s.paused
	s.paused <- cur
	return cur
}

func (s *Surface) ShouldStop() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// Stop implements stop(): idempotent, closes the stop channel exactly
// once.
func (s *Surface) Stop() {
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stop)
	s.log.Info("stop requested")
}

func (s *Surface) SaveProgress() error {
	if s.saver == nil {
		return nil
	}
	snap := s.stats.Snapshot()
	if err := s.saver.SaveProgress(snap); err != nil {
		s.log.WithError(err).Error("save progress failed")
		return err
	}
	s.log.Info("progress saved")
	return nil
}

// Maintenance implements §4.8's maintenance() hook: GC, rate-limiter
// reap, seen-set trim, progress save. The caller (dispatcher) supplies
// the rate-limiter reap function since control has no direct
// dependency on the ratelimit package.
func (s *Surface) Maintenance(reapRateLimiter func() int) {
	runtime.GC()
	s.stats.IncGCInvocation()

	if reapRateLimiter != nil {
		reaped := reapRateLimiter()
		s.log.WithField("reaped", reaped).Debug("rate limiter reaped")
	}

	before := s.seen.Len()
	s.seen.Trim()
	if after := s.seen.Len(); after != before {
		s.log.WithFields(logrus.Fields{"before": before, "after": after}).Info("seen-set trimmed")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		s.log.WithField("memUsedPercent", vm.UsedPercent).Debug("maintenance memory sample")
	}

	_ = s.SaveProgress()
}

// MaintenanceEveryNScans is how often the dispatcher invokes
// Maintenance purely by elapsed scans (every 50,000 per §4.4); kept
// here so the constant has one home.
const MaintenanceEveryNScans = 50_000
