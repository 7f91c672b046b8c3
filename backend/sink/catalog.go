package sink

import (
	"encoding/csv"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	goccyjson "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"mcslp/backend/address"
	"mcslp/backend/enrich"
)

// TextCatalog is the append-only pipe-delimited catalog file from §6.
// Each append is its own open/write/close so a crash mid-session never
// leaves a half-flushed file handle.
type TextCatalog struct {
	path string
	mu   sync.Mutex
}

func NewTextCatalog(path string) *TextCatalog {
	return &TextCatalog{path: path}
}

// Append writes one pipe-delimited record: ip|version|online/max|motd[0:50]|country|qualityScore|timestamp.
func (c *TextCatalog) Append(es enrich.EnrichedServer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open text catalog")
	}
	defer f.Close()

	motd := truncateMOTD(es.MOTD)
	line := strings.Join([]string{
		es.Address.String(),
		es.Version,
		strconv.Itoa(es.PlayersOn) + "/" + strconv.Itoa(es.PlayersMax),
		motd,
		es.Country,
		strconv.Itoa(es.Quality),
		es.Timestamp.UTC().Format(time.RFC3339),
	}, "|")

	if _, err := f.WriteString(line + "\n"); err != nil {
		return errors.Wrap(err, "append text catalog")
	}
	return nil
}

func truncateMOTD(motd string) string {
	motd = strings.ReplaceAll(motd, "\n", " ")
	if len(motd) > 50 {
		motd = motd[:50]
	}
	return motd
}

// JSONCatalog is the §6 `{ "servers": [...], "lastUpdated": ... }`
// catalog. The contract allows a JSON-lines optimization (§9 open
// question); this implementation keeps the rewrite-whole-file
// semantics the source uses, but via goccy/go-json rather than
// encoding/json for the O(n) marshal cost of an already O(n²) path.
type JSONCatalog struct {
	path    string
	mu      sync.Mutex
	servers []enrich.EnrichedServer
}

func NewJSONCatalog(path string) *JSONCatalog {
	return &JSONCatalog{path: path}
}

type jsonCatalogDoc struct {
	Servers     []jsonServerRecord `json:"servers"`
	LastUpdated time.Time          `json:"lastUpdated"`
}

type jsonServerRecord struct {
	IP             string   `json:"ip"`
	Port           int      `json:"port"`
	Version        string   `json:"version"`
	Protocol       int      `json:"protocol"`
	PlayersOnline  int      `json:"playersOnline"`
	PlayersMax     int      `json:"playersMax"`
	MOTD           string   `json:"motd"`
	FaviconPresent bool     `json:"faviconPresent"`
	FaviconHash    string   `json:"faviconHash,omitempty"`
	Modded         bool     `json:"modded"`
	Platforms      []string `json:"platforms,omitempty"`
	Country        string   `json:"country"`
	Quality        int      `json:"qualityScore"`
	Timestamp      string   `json:"timestamp"`
	ResponseMs     int64    `json:"responseTimeMs"`
}

// Append rewrites the whole JSON catalog with the new record included.
func (c *JSONCatalog) Append(es enrich.EnrichedServer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers = append(c.servers, es)
	return c.flushLocked()
}

func (c *JSONCatalog) flushLocked() error {
	doc := jsonCatalogDoc{LastUpdated: time.Now().UTC()}
	doc.Servers = make([]jsonServerRecord, 0, len(c.servers))
	for _, es := range c.servers {
		doc.Servers = append(doc.Servers, jsonServerRecord{
			IP:             es.Address.String(),
			Port:           es.Port,
			Version:        es.Version,
			Protocol:       es.Protocol,
			PlayersOnline:  es.PlayersOn,
			PlayersMax:     es.PlayersMax,
			MOTD:           es.MOTD,
			FaviconPresent: es.FaviconPresent,
			FaviconHash:    es.FaviconHash,
			Modded:         es.Modded,
			Platforms:      es.Platforms,
			Country:        es.Country,
			Quality:        es.Quality,
			Timestamp:      es.Timestamp.UTC().Format(time.RFC3339),
			ResponseMs:     es.ResponseMs,
		})
	}
	data, err := goccyjson.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal json catalog")
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return errors.Wrap(err, "write json catalog")
	}
	return nil
}

// Load seeds the in-memory record list from an existing JSON catalog,
// used at startup so subsequent Append calls keep rewriting a catalog
// that includes prior-session discoveries instead of starting empty.
func (c *JSONCatalog) Load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "read json catalog")
	}
	var doc jsonCatalogDoc
	if err := goccyjson.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, "parse json catalog")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers = c.servers[:0]
	for _, rec := range doc.Servers {
		addr, ok := address.FromNetIP(net.ParseIP(rec.IP))
		if !ok {
			continue
		}
		ts, err := time.Parse(time.RFC3339, rec.Timestamp)
		if err != nil {
			ts = time.Time{}
		}
		c.servers = append(c.servers, enrich.EnrichedServer{
			Address:        addr,
			Port:           rec.Port,
			Version:        rec.Version,
			Protocol:       rec.Protocol,
			PlayersOn:      rec.PlayersOnline,
			PlayersMax:     rec.PlayersMax,
			MOTD:           rec.MOTD,
			FaviconPresent: rec.FaviconPresent,
			FaviconHash:    rec.FaviconHash,
			Modded:         rec.Modded,
			Platforms:      rec.Platforms,
			Country:        rec.Country,
			Quality:        rec.Quality,
			Timestamp:      ts,
			ResponseMs:     rec.ResponseMs,
		})
	}
	return nil
}

// WriteCSVExport renders the current catalog snapshot as CSV. Plain
// stdlib encoding/csv: no library in the pack offers a CSV writer
// worth replacing a 20-line stdlib call with.
func WriteCSVExport(path string, servers []enrich.EnrichedServer) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create csv export")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"ip", "port", "version", "playersOnline", "playersMax", "motd", "country", "qualityScore", "modded", "timestamp"}
	if err := w.Write(header); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	for _, es := range servers {
		record := []string{
			es.Address.String(),
			strconv.Itoa(es.Port),
			es.Version,
			strconv.Itoa(es.PlayersOn),
			strconv.Itoa(es.PlayersMax),
			truncateMOTD(es.MOTD),
			es.Country,
			strconv.Itoa(es.Quality),
			strconv.FormatBool(es.Modded),
			es.Timestamp.UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return errors.Wrap(err, "write csv record")
		}
	}
	return nil
}
