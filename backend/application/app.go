// Package application wires every scanner component — Address
// Generator, Rate Limiter, Prober, Enricher, Result Sink, Statistics
// Aggregator, Control Surface, Dispatcher — into one runnable facade,
// the way the teacher's Application struct wires its collaborators
// together in app.go.
package application

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/yitter/idgenerator-go/idgen"

	"mcslp/backend/address"
	"mcslp/backend/config"
	"mcslp/backend/control"
	"mcslp/backend/dispatcher"
	"mcslp/backend/enrich"
	"mcslp/backend/fingerprint"
	"mcslp/backend/prober"
	"mcslp/backend/protocol"
	"mcslp/backend/ratelimit"
	"mcslp/backend/sink"
	"mcslp/backend/stats"
)

const Version = "1.0.0"

func init() {
	opts := idgen.NewIdGeneratorOptions(1)
	idgen.SetIdGenerator(opts)
}

// Application owns every long-lived scanner component for one run.
// SessionID stamps session-stats.json and the shutdown summary so an
// operator diffing catalogs across restarts can tell which run
// produced which counters.
type Application struct {
	AppDir    string
	Config    *config.Config
	Logger    *logrus.Logger
	SessionID int64

	Stats      *stats.Stats
	Seen       *sink.SeenSet
	SeenCache  *sink.SeenCache
	Limiter    *ratelimit.Limiter
	Generator  *address.Generator
	Prober     *prober.Prober
	Enricher   *enrich.Enricher
	Sink       *sink.Sink
	Control    *control.Surface
	Dispatcher *dispatcher.Dispatcher
}

// New bootstraps the state directory, loads configuration, and wires
// every component. Framing chooses the handshake mode the Prober
// uses; either protocol.FramingUnframed or protocol.FramingStrict is
// byte-compatible per spec §4.2's note.
func New(appDir string, framing protocol.Framing) (*Application, error) {
	if appDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "resolve home directory")
		}
		appDir = filepath.Join(home, ".minecraft-scanner")
	}

	for _, sub := range []string{"logs", "exports", "cache"} {
		if err := os.MkdirAll(filepath.Join(appDir, sub), 0o755); err != nil {
			return nil, errors.Wrapf(err, "create state directory %s", sub)
		}
	}

	cfgPath := filepath.Join(appDir, "config.json")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	logger := newLogger(cfg.LogLevel, filepath.Join(appDir, "logs", "scanner.log"))

	sessionID := idgen.NextId()

	app := &Application{
		AppDir:    appDir,
		Config:    cfg,
		Logger:    logger,
		SessionID: sessionID,
		Stats:     stats.New(sessionID),
		Seen:      sink.NewSeenSet(),
	}

	if cache, err := sink.OpenSeenCache(filepath.Join(appDir, "cache", "seen.db")); err == nil {
		app.SeenCache = cache
	} else {
		logger.WithError(err).Warn("seen cache unavailable, falling back to text catalog scan")
	}

	textCatalogPath := filepath.Join(appDir, cfg.OutputFile)
	wantJSON := cfg.HasExportFormat(config.ExportJSON)
	jsonCatalogPath := filepath.Join(appDir, jsonSiblingOf(cfg.OutputFile))

	app.Sink = sink.New(app.Seen, textCatalogPath, jsonCatalogPath, wantJSON, logger)
	app.Sink.Cache = app.SeenCache
	if err := app.Sink.SeedFromDisk(textCatalogPath); err != nil {
		logger.WithError(err).Warn("seen-set seeding failed")
	}

	app.Limiter = ratelimit.New(cfg.MaxRetries)

	// The Dispatcher doesn't exist yet (it needs the Generator), but the
	// cluster draw strategy needs a LastFoundFunc now. This closure
	// defers to app.Dispatcher once New finishes wiring it below — the
	// Generator itself still holds no state of its own, per §9.
	lastFound := func() (address.Address, bool) {
		if app.Dispatcher == nil {
			return 0, false
		}
		return app.Dispatcher.LastFound()
	}

	gen, err := address.New(
		address.Mode(cfg.ScanMode), cfg.IPRanges, cfg.ExcludeCIDR,
		&oracleAdapter{seen: app.Seen, limiter: app.Limiter},
		lastFound,
	)
	if err != nil {
		return nil, errors.Wrap(err, "build address generator")
	}
	app.Generator = gen

	app.Prober = prober.New(cfg.Port, cfg.TimeoutDuration(), cfg.MaxRetries, framing, logger)

	var resolver enrich.Resolver
	if cfg.EnableGeoIP {
		resolver = enrich.NewDNSResolver("1.1.1.1:53", 300*time.Millisecond)
	}
	app.Enricher = enrich.New(fingerprint.NewEngine(fingerprint.DefaultRuleSet()), resolver, cfg.EnableGeoIP, cfg.VersionFilter)

	app.Control = control.New(app.Stats, app.Seen, app, logger)

	dcfg := dispatcher.Config{
		BatchSize: cfg.BatchSize, MaxConcurrent: cfg.MaxConcur,
		MaxScans: cfg.MaxScans, MinPlayers: cfg.MinPlayers, MaxPlayers: cfg.MaxPlayers,
	}
	app.Dispatcher = dispatcher.New(dcfg, gen, app.Limiter, app.Prober, app.Enricher, app.Sink, app.Stats, app.Control, logger)

	return app, nil
}

// Run drives the dispatcher until it returns, then performs shutdown.
func (a *Application) Run(ctx context.Context) error {
	a.Logger.WithField("sessionId", a.SessionID).Info("scanner starting")
	go a.Control.Run(ctx)

	err := a.Dispatcher.Run(ctx)
	a.shutdown()
	return err
}

// shutdown flushes the statistics snapshot and emits the timestamped
// summary file required by §4.8.
func (a *Application) shutdown() {
	snap := a.Stats.Snapshot()
	if err := a.SaveProgress(snap); err != nil {
		a.Logger.WithError(err).Error("final save failed")
	}

	summary := control.BuildShutdownSummary(a.SessionID, snap, time.Now())
	name := fmt.Sprintf("shutdown-summary-%s.yaml", time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(a.AppDir, "logs", name)
	if err := control.WriteShutdownSummary(path, summary); err != nil {
		a.Logger.WithError(err).Error("shutdown summary write failed")
	}
	if a.Config.HasExportFormat(config.ExportCSV) {
		csvPath := filepath.Join(a.AppDir, "exports", fmt.Sprintf("discovered-servers-%s.csv", time.Now().UTC().Format("20060102T150405Z")))
		if err := a.Sink.ExportCSV(csvPath); err != nil {
			a.Logger.WithError(err).Error("csv export failed")
		}
	}
	if a.SeenCache != nil {
		_ = a.SeenCache.Close()
	}
	a.Logger.WithField("sessionId", a.SessionID).Info("scanner stopped")
}

// SaveProgress implements control.Saver, per §4.8's saveProgress(): it
// writes config.json and then session-stats.json. Each file is
// rewritten in place with os.WriteFile, and the pair is not updated
// atomically: a failure between the two writes leaves only config.json
// updated.
func (a *Application) SaveProgress(snap stats.Snapshot) error {
	if err := a.Config.Save(filepath.Join(a.AppDir, "config.json")); err != nil {
		return errors.Wrap(err, "save config")
	}
	return writeSessionStats(filepath.Join(a.AppDir, "session-stats.json"), snap)
}

func jsonSiblingOf(outputFile string) string {
	ext := filepath.Ext(outputFile)
	base := outputFile[:len(outputFile)-len(ext)]
	return base + ".json"
}

// newLogger maps cfg.LogLevel onto logrus.Level; "silent" routes
// output to io.Discard since logrus has no matching level.
func newLogger(level config.LogLevel, logFilePath string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
		logger.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	switch level {
	case config.LogSilent:
		logger.SetOutput(io.Discard)
	case config.LogError:
		logger.SetLevel(logrus.ErrorLevel)
	case config.LogWarn:
		logger.SetLevel(logrus.WarnLevel)
	case config.LogDebug:
		logger.SetLevel(logrus.DebugLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}

// oracleAdapter satisfies address.Oracle by delegating to the
// scanner's own seen-set and blacklist, per §9's "no process-wide
// singletons" design note — the Generator holds no state of its own.
type oracleAdapter struct {
	seen    *sink.SeenSet
	limiter *ratelimit.Limiter
}

func (o *oracleAdapter) Seen(a address.Address) bool        { return o.seen.Contains(a) }
func (o *oracleAdapter) Blacklisted(a address.Address) bool { return o.limiter.Blacklisted(a) }
