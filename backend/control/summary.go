package control

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"mcslp/backend/stats"
)

// ShutdownSummary is the timestamped YAML file §4.8 requires on
// shutdown: top-10 versions, top-10 countries, best server, and
// performance metrics. YAML has no mandated wire format in spec.md
// (§9 open question analog), so it is rendered for operator
// readability the way the teacher renders extract.yaml-shaped config.
type ShutdownSummary struct {
	SessionID         int64              `yaml:"sessionId"`
	GeneratedAt       time.Time          `yaml:"generatedAt"`
	TotalScanned      uint64             `yaml:"totalScanned"`
	TotalFound        uint64             `yaml:"totalFound"`
	DuplicatesSkipped uint64             `yaml:"duplicatesSkipped"`
	Errors            uint64             `yaml:"errors"`
	AvgResponseTimeMs float64            `yaml:"avgResponseTimeMs"`
	PeakScanRate      float64            `yaml:"peakScanRate"`
	TopVersions       []stats.KV         `yaml:"topVersions"`
	TopCountries      []stats.KV         `yaml:"topCountries"`
	BestServerIP      string             `yaml:"bestServerIp,omitempty"`
	BestServerQuality int                `yaml:"bestServerQuality,omitempty"`
}

// BuildShutdownSummary derives the summary from a statistics snapshot.
func BuildShutdownSummary(sessionID int64, snap stats.Snapshot, generatedAt time.Time) ShutdownSummary {
	sum := ShutdownSummary{
		SessionID:         sessionID,
		GeneratedAt:       generatedAt,
		TotalScanned:      snap.TotalScanned,
		TotalFound:        snap.TotalFound,
		DuplicatesSkipped: snap.DuplicatesSkipped,
		Errors:            snap.Errors,
		AvgResponseTimeMs: snap.AvgResponseTimeMs,
		PeakScanRate:      snap.PeakScanRate,
		TopVersions:       stats.TopN(snap.ServersByVersion, 10),
		TopCountries:      stats.TopN(snap.ServersByCountry, 10),
	}
	if snap.BestServer != nil {
		sum.BestServerIP = snap.BestServer.Address.String()
		sum.BestServerQuality = snap.BestServer.Quality
	}
	return sum
}

// WriteShutdownSummary renders and writes the summary to path.
func WriteShutdownSummary(path string, sum ShutdownSummary) error {
	data, err := yaml.Marshal(sum)
	if err != nil {
		return errors.Wrap(err, "marshal shutdown summary")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "write shutdown summary")
	}
	return nil
}
