// Package stats implements the Statistics Aggregator: monotonic
// counters, the response-time EMA, and the top-K tallies from §3/§4.7.
// SPEC_FULL §5 commits this repository to the parallel-threaded
// permitted variant, so unlike the teacher's channel-owned
// progressReporter (scanner/gogo/progress.go) this aggregator is a
// plain mutex-guarded struct: every field here would otherwise be a
// field of that single-goroutine's snapshot.
package stats

import (
	"sync"
	"time"

	"mcslp/backend/enrich"
)

const motdCap = 256

// PlayerBucket is one of the fixed buckets from §3.
type PlayerBucket string

const (
	Bucket0      PlayerBucket = "0"
	Bucket1to5   PlayerBucket = "1-5"
	Bucket6to20  PlayerBucket = "6-20"
	Bucket21to50 PlayerBucket = "21-50"
	Bucket51to100 PlayerBucket = "51-100"
	Bucket100Plus PlayerBucket = "100+"
)

func bucketFor(online int) PlayerBucket {
	switch {
	case online <= 0:
		return Bucket0
	case online <= 5:
		return Bucket1to5
	case online <= 20:
		return Bucket6to20
	case online <= 50:
		return Bucket21to50
	case online <= 100:
		return Bucket51to100
	default:
		return Bucket100Plus
	}
}

// Snapshot is the externally observable statistics record, a
// JSON-serializable copy taken under lock.
type Snapshot struct {
	TotalScanned      uint64
	TotalFound        uint64
	DuplicatesSkipped uint64
	Errors            uint64
	TimeoutCount      uint64
	ConnectionErrors  uint64
	ActiveConnections int64
	GCInvocations     uint64
	StartTime         time.Time
	AvgResponseTimeMs float64
	PeakScanRate      float64
	ServersByVersion  map[string]uint64
	ServersByCountry  map[string]uint64
	ServersByPlayers  map[PlayerBucket]uint64
	PopularMOTDs      map[string]uint64
	LastFoundServer   *enrich.EnrichedServer
	BestServer        *enrich.EnrichedServer
	SessionID         int64
}

// Stats is the live, mutable statistics aggregator.
type Stats struct {
	mu sync.Mutex

	totalScanned      uint64
	totalFound        uint64
	duplicatesSkipped uint64
	errors            uint64
	timeoutCount      uint64
	connectionErrors  uint64
	activeConnections int64
	gcInvocations     uint64
	startTime         time.Time
	avgResponseTimeMs float64
	peakScanRate      float64

	serversByVersion map[string]uint64
	serversByCountry map[string]uint64
	serversByPlayers map[PlayerBucket]uint64
	popularMOTDs     map[string]uint64

	lastFoundServer *enrich.EnrichedServer
	bestServer      *enrich.EnrichedServer

	sessionID int64
}

func New(sessionID int64) *Stats {
	return &Stats{
		startTime:        time.Now(),
		serversByVersion: make(map[string]uint64),
		serversByCountry: make(map[string]uint64),
		serversByPlayers: make(map[PlayerBucket]uint64),
		popularMOTDs:     make(map[string]uint64),
		sessionID:        sessionID,
	}
}

// IncScanned records the start of a probe; I1 requires total-found
// never exceed this.
func (s *Stats) IncScanned() {
	s.mu.Lock()
	s.totalScanned++
	s.mu.Unlock()
}

func (s *Stats) IncActive(delta int64) {
	s.mu.Lock()
	s.activeConnections += delta
	if s.activeConnections < 0 {
		s.activeConnections = 0
	}
	s.mu.Unlock()
}

func (s *Stats) IncDuplicatesSkipped() {
	s.mu.Lock()
	s.duplicatesSkipped++
	s.mu.Unlock()
}

func (s *Stats) IncError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

func (s *Stats) IncTimeout() {
	s.mu.Lock()
	s.timeoutCount++
	s.mu.Unlock()
}

func (s *Stats) IncConnectionError() {
	s.mu.Lock()
	s.connectionErrors++
	s.mu.Unlock()
}

func (s *Stats) IncGCInvocation() {
	s.mu.Lock()
	s.gcInvocations++
	s.mu.Unlock()
}

// RecordResponseTime updates the exponential moving average, α=0.1.
func (s *Stats) RecordResponseTime(ms int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.avgResponseTimeMs == 0 {
		s.avgResponseTimeMs = float64(ms)
		return
	}
	s.avgResponseTimeMs = 0.9*s.avgResponseTimeMs + 0.1*float64(ms)
}

// RecordFound folds a newly discovered server into every tally: version,
// country, player-count bucket, MOTD cap, last-found, best-server, and
// recomputes peak scan rate.
func (s *Stats) RecordFound(es enrich.EnrichedServer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalFound++
	s.serversByVersion[es.Version]++
	s.serversByCountry[es.Country]++
	s.serversByPlayers[bucketFor(es.PlayersOn)]++
	s.recordMOTDLocked(es.MOTD)

	esCopy := es
	s.lastFoundServer = &esCopy
	if s.bestServer == nil || es.Quality > s.bestServer.Quality {
		bestCopy := es
		s.bestServer = &bestCopy
	}

	s.updatePeakRateLocked()
}

// recordMOTDLocked implements §4.7's cap rule: an MOTD already at
// count 10 is never incremented further, and no new MOTD is inserted
// once the map holds motdCap entries.
func (s *Stats) recordMOTDLocked(motd string) {
	if count, ok := s.popularMOTDs[motd]; ok {
		if count >= 10 {
			return
		}
		s.popularMOTDs[motd] = count + 1
		return
	}
	if len(s.popularMOTDs) >= motdCap {
		return
	}
	s.popularMOTDs[motd] = 1
}

func (s *Stats) updatePeakRateLocked() {
	uptime := time.Since(s.startTime).Seconds()
	if uptime <= 0 {
		return
	}
	rate := float64(s.totalScanned) / uptime
	if rate > s.peakScanRate {
		s.peakScanRate = rate
	}
}

// ResetVolatile implements resetStats(): zero volatile counters while
// preserving total-found, serversByVersion, serversByCountry, per §4.8.
func (s *Stats) ResetVolatile() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalScanned = 0
	s.duplicatesSkipped = 0
	s.errors = 0
	s.timeoutCount = 0
	s.connectionErrors = 0
	s.avgResponseTimeMs = 0
	s.peakScanRate = 0
	s.serversByPlayers = make(map[PlayerBucket]uint64)
	s.popularMOTDs = make(map[string]uint64)
	s.startTime = time.Now()
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		TotalScanned:      s.totalScanned,
		TotalFound:        s.totalFound,
		DuplicatesSkipped: s.duplicatesSkipped,
		Errors:            s.errors,
		TimeoutCount:      s.timeoutCount,
		ConnectionErrors:  s.connectionErrors,
		ActiveConnections: s.activeConnections,
		GCInvocations:     s.gcInvocations,
		StartTime:         s.startTime,
		AvgResponseTimeMs: s.avgResponseTimeMs,
		PeakScanRate:      s.peakScanRate,
		ServersByVersion:  copyStringMap(s.serversByVersion),
		ServersByCountry:  copyStringMap(s.serversByCountry),
		ServersByPlayers:  copyBucketMap(s.serversByPlayers),
		PopularMOTDs:      copyStringMap(s.popularMOTDs),
		SessionID:         s.sessionID,
	}
	if s.lastFoundServer != nil {
		v := *s.lastFoundServer
		snap.LastFoundServer = &v
	}
	if s.bestServer != nil {
		v := *s.bestServer
		snap.BestServer = &v
	}
	return snap
}

func copyStringMap(m map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyBucketMap(m map[PlayerBucket]uint64) map[PlayerBucket]uint64 {
	out := make(map[PlayerBucket]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
