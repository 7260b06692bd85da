// Package manifest parses and validates the manifest.json shipped inside
// every game package. Validation happens once at version ingestion; a stored
// manifest is trusted afterwards.
package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/playdeck/playdeck/internal/ports"
)

// schema is the wire contract of manifest.json. extra keys are rejected so a
// typo like "server-entry" fails at upload rather than at launch.
const schema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["entry", "min_players", "max_players"],
  "properties": {
    "entry":        {"type": "string", "minLength": 1},
    "server_entry": {"type": "string", "minLength": 1},
    "min_players":  {"type": "integer", "minimum": 1},
    "max_players":  {"type": "integer", "minimum": 1}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(schema)

// Parse validates raw manifest.json bytes and returns the typed manifest with
// normalized entry paths.
func Parse(raw []byte) (ports.Manifest, error) {
	var zero ports.Manifest
	res, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return zero, fmt.Errorf("manifest.json is not valid JSON: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return zero, fmt.Errorf("manifest.json invalid: %s", strings.Join(msgs, "; "))
	}
	var m ports.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return zero, fmt.Errorf("decode manifest.json: %w", err)
	}
	if m.MinPlayers > m.MaxPlayers {
		return zero, fmt.Errorf("min_players (%d) exceeds max_players (%d)", m.MinPlayers, m.MaxPlayers)
	}
	if m.Entry, err = normalizeEntry(m.Entry); err != nil {
		return zero, fmt.Errorf("entry: %w", err)
	}
	if m.ServerEntry != "" {
		if m.ServerEntry, err = normalizeEntry(m.ServerEntry); err != nil {
			return zero, fmt.Errorf("server_entry: %w", err)
		}
	}
	return m, nil
}

// normalizeEntry canonicalizes an archive-relative path and rejects traversal.
func normalizeEntry(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", fmt.Errorf("path %q escapes the archive", p)
		}
	}
	return p, nil
}
