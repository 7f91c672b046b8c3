// Package sink implements the Result Sink: the deduplicating,
// serialized writer that turns EnrichedServer records into the
// append-only catalog files from §6.
package sink

import (
	"sync"

	"github.com/sirupsen/logrus"

	"mcslp/backend/enrich"
)

// Sink serializes catalog writes behind a mutex, per §4.6's
// "mutex around the append" option — the simpler of the two
// permitted designs since the parallel-threaded dispatcher variant
// (SPEC_FULL §5) already needs a lock here regardless.
type Sink struct {
	mu sync.Mutex

	Seen  *SeenSet
	Cache *SeenCache // optional on-disk accelerator; nil disables it

	text *TextCatalog
	json *JSONCatalog

	wantJSON bool

	snapshot []enrich.EnrichedServer // for CSV export

	DuplicatesSkipped uint64
	Logger            *logrus.Logger
}

func New(seen *SeenSet, textPath, jsonPath string, wantJSON bool, logger *logrus.Logger) *Sink {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Sink{
		Seen:     seen,
		text:     NewTextCatalog(textPath),
		wantJSON: wantJSON,
		Logger:   logger,
	}
	if wantJSON {
		s.json = NewJSONCatalog(jsonPath)
	}
	return s
}

// Append implements §4.6: skip duplicates, write the catalog
// record(s), and only then insert into the seen-set, so a write
// failure never hides the address from a future session.
func (s *Sink) Append(es enrich.EnrichedServer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Seen.Contains(es.Address) {
		s.DuplicatesSkipped++
		return nil
	}

	if err := s.text.Append(es); err != nil {
		s.Logger.WithError(err).WithField("address", es.Address.String()).Error("catalog append failed")
		return err
	}
	if s.wantJSON && s.json != nil {
		if err := s.json.Append(es); err != nil {
			s.Logger.WithError(err).Error("json catalog append failed")
			return err
		}
	}

	s.Seen.Insert(es.Address)
	if s.Cache != nil {
		if err := s.Cache.Record(es.Address); err != nil {
			s.Logger.WithError(err).Warn("seen cache record failed")
		}
	}
	s.snapshot = append(s.snapshot, es)
	return nil
}

// Snapshot returns the servers appended so far (plus those loaded from
// the JSON catalog at startup), for CSV export.
func (s *Sink) Snapshot() []enrich.EnrichedServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]enrich.EnrichedServer, len(s.snapshot))
	copy(out, s.snapshot)
	return out
}

// ExportCSV writes the current snapshot to path.
func (s *Sink) ExportCSV(path string) error {
	return WriteCSVExport(path, s.Snapshot())
}

// SeedFromDisk loads the seen-set from the on-disk sqlite accelerator
// if present, falling back to parsing the text catalog directly. It
// also loads the JSON catalog's existing records, if JSON export is
// enabled, so a later Append rewrites a file that still contains
// every prior-session discovery instead of starting from empty.
func (s *Sink) SeedFromDisk(textCatalogPath string) error {
	if s.wantJSON && s.json != nil {
		if err := s.json.Load(); err != nil {
			s.Logger.WithError(err).Warn("json catalog seed failed")
		} else {
			s.snapshot = append(s.snapshot, s.json.servers...)
		}
	}

	if s.Cache != nil {
		if err := s.Cache.LoadInto(s.Seen); err == nil && s.Seen.Len() > 0 {
			return nil
		}
	}
	return s.Seen.SeedFromCatalog(textCatalogPath)
}
