package application

import (
	"os"
	"time"

	goccyjson "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"mcslp/backend/stats"
)

// kvPair serializes one map entry as a JSON [key, value] tuple, per
// §6's session-stats.json contract.
type kvPair struct {
	Key   string
	Count uint64
}

func (p kvPair) MarshalJSON() ([]byte, error) {
	return goccyjson.Marshal([2]interface{}{p.Key, p.Count})
}

type sessionStatsDoc struct {
	SessionID         int64       `json:"sessionId"`
	GeneratedAt       time.Time   `json:"generatedAt"`
	TotalScanned      uint64      `json:"totalScanned"`
	TotalFound        uint64      `json:"totalFound"`
	DuplicatesSkipped uint64      `json:"duplicatesSkipped"`
	Errors            uint64      `json:"errors"`
	TimeoutCount      uint64      `json:"timeoutCount"`
	ConnectionErrors  uint64      `json:"connectionErrors"`
	ActiveConnections int64       `json:"activeConnections"`
	GCInvocations     uint64      `json:"gcInvocations"`
	StartTime         time.Time   `json:"startTime"`
	AvgResponseTimeMs float64     `json:"avgResponseTimeMs"`
	PeakScanRate      float64     `json:"peakScanRate"`
	ServersByVersion  []kvPair    `json:"serversByVersion"`
	ServersByCountry  []kvPair    `json:"serversByCountry"`
	ServersByPlayers  []kvPair    `json:"serversByPlayerCount"`
	PopularMOTDs      []kvPair    `json:"popularMOTDs"`
}

func writeSessionStats(path string, snap stats.Snapshot) error {
	doc := sessionStatsDoc{
		SessionID:         snap.SessionID,
		GeneratedAt:       time.Now().UTC(),
		TotalScanned:      snap.TotalScanned,
		TotalFound:        snap.TotalFound,
		DuplicatesSkipped: snap.DuplicatesSkipped,
		Errors:            snap.Errors,
		TimeoutCount:      snap.TimeoutCount,
		ConnectionErrors:  snap.ConnectionErrors,
		ActiveConnections: snap.ActiveConnections,
		GCInvocations:     snap.GCInvocations,
		StartTime:         snap.StartTime,
		AvgResponseTimeMs: snap.AvgResponseTimeMs,
		PeakScanRate:      snap.PeakScanRate,
		ServersByVersion:  toKVPairs(snap.ServersByVersion),
		ServersByCountry:  toKVPairs(snap.ServersByCountry),
		PopularMOTDs:      toKVPairs(snap.PopularMOTDs),
	}
	for bucket, count := range snap.ServersByPlayers {
		doc.ServersByPlayers = append(doc.ServersByPlayers, kvPair{Key: string(bucket), Count: count})
	}

	data, err := goccyjson.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal session stats")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "write session stats")
	}
	return nil
}

func toKVPairs(m map[string]uint64) []kvPair {
	out := make([]kvPair, 0, len(m))
	for k, v := range m {
		out = append(out, kvPair{Key: k, Count: v})
	}
	return out
}
