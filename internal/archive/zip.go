package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/playdeck/playdeck/internal/manifest"
	"github.com/playdeck/playdeck/internal/ports"
)

const manifestName = "manifest.json"

// Inspect validates a package archive: it must be a zip containing
// manifest.json, the manifest must validate, and every declared entry point
// must exist in the archive. Returns the parsed manifest.
func Inspect(raw []byte) (ports.Manifest, error) {
	var zero ports.Manifest
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return zero, fmt.Errorf("not a valid zip archive: %w", err)
	}
	names := make(map[string]bool, len(zr.File))
	var mf *zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := normalizeName(f.Name)
		names[name] = true
		if name == manifestName {
			mf = f
		}
	}
	if mf == nil {
		return zero, fmt.Errorf("archive has no %s", manifestName)
	}
	rc, err := mf.Open()
	if err != nil {
		return zero, err
	}
	defer rc.Close()
	mraw, err := io.ReadAll(rc)
	if err != nil {
		return zero, err
	}
	m, err := manifest.Parse(mraw)
	if err != nil {
		return zero, err
	}
	if !names[m.Entry] {
		return zero, fmt.Errorf("entry %q not found in archive", m.Entry)
	}
	if m.ServerEntry != "" && !names[m.ServerEntry] {
		return zero, fmt.Errorf("server_entry %q not found in archive", m.ServerEntry)
	}
	return m, nil
}

// Integrity returns a per-file SHA-256 map for a stored package so clients
// can verify local copies. Editor droppings and bytecode caches are skipped.
func (s *Store) Integrity(ctx context.Context, key string) (map[string]string, error) {
	raw, err := s.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("stored package corrupt: %w", err)
	}
	hashes := make(map[string]string)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := normalizeName(f.Name)
		if name == "" || ignoredPath(name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		h := sha256.New()
		if _, err := io.Copy(h, rc); err != nil {
			rc.Close()
			return nil, err
		}
		rc.Close()
		hashes[name] = hex.EncodeToString(h.Sum(nil))
	}
	return hashes, nil
}

// Unpack extracts a stored package into dir. Entries resolving outside dir
// are rejected.
func (s *Store) Unpack(ctx context.Context, key, dir string) error {
	raw, err := s.Fetch(ctx, key)
	if err != nil {
		return err
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return fmt.Errorf("stored package corrupt: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, f := range zr.File {
		name := normalizeName(f.Name)
		if name == "" {
			continue
		}
		target := filepath.Join(dir, filepath.FromSlash(name))
		rel, err := filepath.Rel(dir, target)
		if err != nil || strings.HasPrefix(rel, "..") {
			return fmt.Errorf("archive entry %q escapes target dir", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func normalizeName(n string) string {
	n = strings.ReplaceAll(n, "\\", "/")
	return strings.TrimLeft(n, "/")
}

func ignoredPath(name string) bool {
	parts := strings.Split(name, "/")
	if len(parts) == 0 {
		return true
	}
	switch parts[0] {
	case "__MACOSX", ".git", ".idea", ".vscode":
		return true
	}
	for _, p := range parts {
		if p == "__pycache__" {
			return true
		}
	}
	base := parts[len(parts)-1]
	if base == ".DS_Store" || base == "Thumbs.db" {
		return true
	}
	return strings.HasSuffix(base, ".pyc") || strings.HasSuffix(base, ".pyo")
}
