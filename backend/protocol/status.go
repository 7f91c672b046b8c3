package protocol

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNoResponse signals an empty response buffer — the peer sent nothing
// before closing or timing out.
var ErrNoResponse = errors.New("protocol: empty response")

// ErrMalformed signals bytes were received but no JSON object could be
// located in them by either the strict or fallback path.
var ErrMalformed = errors.New("protocol: malformed status response")

// PlayerSample is one entry of players.sample.
type PlayerSample struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// RawStatus is the parsed status response, per §3, with the original
// JSON retained verbatim in RawJSON for audit and modded-platform
// keyword scanning.
type RawStatus struct {
	VersionName     string
	VersionProtocol int
	PlayersOnline   int
	PlayersMax      int
	PlayersSample   []PlayerSample
	Description     string // polymorphic text/extra parts, concatenated
	HasFavicon      bool
	RawJSON         string
}

// ParseResponse implements the §4.2 parse algorithm: read the strict
// VarInt-framed packet-length/packet-id/json-length preamble first; on
// any failure, fall back to slicing the first '{' .. last '}' span out
// of the raw buffer decoded as UTF-8.
func ParseResponse(buf []byte) (RawStatus, error) {
	if len(buf) == 0 {
		return RawStatus{}, ErrNoResponse
	}
	if raw, ok := extractFramed(buf); ok {
		return parseStatusJSON(raw)
	}
	if raw, ok := extractByBraces(buf); ok {
		return parseStatusJSON(raw)
	}
	return RawStatus{}, ErrMalformed
}

func extractFramed(buf []byte) (string, bool) {
	_, off, err := ReadVarInt(buf, 0) // packet length
	if err != nil {
		return "", false
	}
	_, off, err = ReadVarInt(buf, off) // packet id
	if err != nil {
		return "", false
	}
	jsonLen, off, err := ReadVarInt(buf, off)
	if err != nil || jsonLen < 0 {
		return "", false
	}
	end := off + int(jsonLen)
	if end > len(buf) {
		return "", false
	}
	if !gjson.ValidBytes(buf[off:end]) {
		return "", false
	}
	return string(buf[off:end]), true
}

func extractByBraces(buf []byte) (string, bool) {
	s := string(buf)
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return "", false
	}
	candidate := s[start : end+1]
	if !gjson.Valid(candidate) {
		return "", false
	}
	return candidate, true
}

func parseStatusJSON(raw string) (RawStatus, error) {
	root := gjson.Parse(raw)
	status := RawStatus{RawJSON: raw}
	status.VersionName = root.Get("version.name").String()
	if p := root.Get("version.protocol"); p.Exists() {
		status.VersionProtocol = int(p.Int())
	}
	status.PlayersOnline = int(root.Get("players.online").Int())
	status.PlayersMax = int(root.Get("players.max").Int())
	for _, s := range root.Get("players.sample").Array() {
		status.PlayersSample = append(status.PlayersSample, PlayerSample{
			Name: s.Get("name").String(),
			ID:   s.Get("id").String(),
		})
	}
	status.Description = normalizeDescription(root.Get("description"))
	status.HasFavicon = root.Get("favicon").Exists() && root.Get("favicon").String() != ""
	return status, nil
}

// normalizeDescription collapses the polymorphic description field —
// a bare string, or an object with .text and a list of .extra parts
// (each itself shaped the same way) — into one flat string.
func normalizeDescription(d gjson.Result) string {
	if !d.Exists() {
		return ""
	}
	if d.Type == gjson.String {
		return d.String()
	}
	var sb strings.Builder
	sb.WriteString(d.Get("text").String())
	for _, part := range d.Get("extra").Array() {
		sb.WriteString(normalizeDescription(part))
	}
	return sb.String()
}
