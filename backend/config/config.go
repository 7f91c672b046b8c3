// Package config defines the on-disk schema for the scanner's config.json
// and the defaults applied when a field is absent.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// ScanMode selects the Address Generator strategy.
type ScanMode string

const (
	ModeSmartRandom ScanMode = "smart-random"
	ModeRandom      ScanMode = "random"
	ModeRange       ScanMode = "range"
	ModeTargeted    ScanMode = "targeted"
)

// LogLevel maps onto logrus.Level; "silent" has no direct logrus
// equivalent and is handled by routing the logger's output to io.Discard.
type LogLevel string

const (
	LogSilent LogLevel = "silent"
	LogError  LogLevel = "error"
	LogWarn   LogLevel = "warn"
	LogInfo   LogLevel = "info"
	LogDebug  LogLevel = "debug"
)

// ExportFormat is one entry of the exportFormats set.
type ExportFormat string

const (
	ExportTxt  ExportFormat = "txt"
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// Config is the in-memory shape of config.json, read once at startup.
type Config struct {
	Port       int    `json:"port"`
	Timeout    int    `json:"timeout"` // milliseconds
	MaxRetries int    `json:"maxRetries"`
	BatchSize  int    `json:"batchSize"`
	MaxConcur  int    `json:"maxConcurrent"`
	MaxScans   *int64 `json:"maxScans"` // nil = infinite

	ScanMode    ScanMode `json:"scanMode"`
	IPRanges    []string `json:"ipRanges"`
	ExcludeCIDR []string `json:"excludeRanges"`

	OutputFile    string         `json:"outputFile"`
	ExportFormats []ExportFormat `json:"exportFormats"`
	LogLevel      LogLevel       `json:"logLevel"`
	VersionFilter []string       `json:"versionFilter"`
	MinPlayers    int            `json:"minPlayers"`
	MaxPlayers    int            `json:"maxPlayers"`
	EnableGeoIP   bool           `json:"enableGeolocation"`
	SaveInterval  int            `json:"saveInterval"` // milliseconds
	StatsInterval int            `json:"statsInterval"`
	GCInterval    int            `json:"gcInterval"`
}

// Default returns the configuration the scanner boots with when no
// config.json is present, mirroring defaultConfig in the teacher's
// application package.
func Default() *Config {
	return &Config{
		Port:          25565,
		Timeout:       2500,
		MaxRetries:    3,
		BatchSize:     200,
		MaxConcur:     2000,
		MaxScans:      nil,
		ScanMode:      ModeSmartRandom,
		IPRanges:      nil,
		ExcludeCIDR:   DefaultExcludedRanges(),
		OutputFile:    "discovered-servers.txt",
		ExportFormats: []ExportFormat{ExportTxt},
		LogLevel:      LogInfo,
		VersionFilter: nil,
		MinPlayers:    0,
		MaxPlayers:    1 << 30,
		EnableGeoIP:   true,
		SaveInterval:  60_000,
		StatsInterval: 1_000,
		GCInterval:    60_000,
	}
}

// DefaultExcludedRanges are the CIDRs never probed regardless of scanMode.
func DefaultExcludedRanges() []string {
	return []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"224.0.0.0/4",
		"240.0.0.0/4",
	}
}

// Load reads and parses config.json at path, falling back to Default
// for any field the file omits.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	cfg.applyDefaultsForZeroFields()
	return cfg, nil
}

// applyDefaultsForZeroFields patches fields the on-disk JSON left at Go's
// zero value back to their documented default, since encoding/json cannot
// distinguish "absent" from "explicitly zero" on plain scalars.
func (c *Config) applyDefaultsForZeroFields() {
	d := Default()
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.BatchSize == 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxConcur == 0 {
		c.MaxConcur = d.MaxConcur
	}
	if c.ScanMode == "" {
		c.ScanMode = d.ScanMode
	}
	if len(c.ExcludeCIDR) == 0 {
		c.ExcludeCIDR = d.ExcludeCIDR
	}
	if c.OutputFile == "" {
		c.OutputFile = d.OutputFile
	}
	if len(c.ExportFormats) == 0 {
		c.ExportFormats = d.ExportFormats
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.MaxPlayers == 0 {
		c.MaxPlayers = d.MaxPlayers
	}
	if c.SaveInterval == 0 {
		c.SaveInterval = d.SaveInterval
	}
	if c.StatsInterval == 0 {
		c.StatsInterval = d.StatsInterval
	}
	if c.GCInterval == 0 {
		c.GCInterval = d.GCInterval
	}
}

// Save writes the configuration back to path as formatted JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create config dir for %s", path)
	}
	return os.WriteFile(path, data, 0o644)
}

// HasExportFormat reports whether format is in ExportFormats.
func (c *Config) HasExportFormat(format ExportFormat) bool {
	for _, f := range c.ExportFormats {
		if f == format {
			return true
		}
	}
	return false
}

// TimeoutDuration is Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}
