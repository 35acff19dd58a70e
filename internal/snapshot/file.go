// Package snapshot persists introspected schemas: as YAML files that can
// stand in for a live database, and in an on-disk cache keyed by schema
// fingerprint.
package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"schemamap/internal/introspection"
)

// FormatVersion is written to every snapshot file.
const FormatVersion = 1

// ErrUnsupportedVersion is returned for snapshot files written by a newer
// format.
var ErrUnsupportedVersion = errors.New("unsupported snapshot version")

// File is the on-disk snapshot layout.
type File struct {
	Version     int    `yaml:"version"`
	Fingerprint string `yaml:"fingerprint,omitempty"`

	introspection.Schema `yaml:",inline"`
}

// Decode reads a snapshot from r. A missing version is treated as the
// current one so hand-written files need not declare it.
func Decode(r io.Reader) (*introspection.Schema, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &introspection.Schema{}, nil
		}
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if f.Version > FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, f.Version)
	}
	schema := f.Schema
	schema.Normalize()
	return &schema, nil
}

// Encode writes schema to w.
func Encode(w io.Writer, schema *introspection.Schema, fingerprint string) error {
	if schema == nil {
		return fmt.Errorf("schema is required")
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(File{Version: FormatVersion, Fingerprint: fingerprint, Schema: *schema}); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return enc.Close()
}

// ReadFile loads a snapshot from path.
func ReadFile(path string) (*introspection.Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot %q: %w", path, err)
	}
	defer f.Close()

	schema, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return schema, nil
}

// WriteFile writes schema to path atomically through a temporary file in
// the same directory.
func WriteFile(path string, schema *introspection.Schema, fingerprint string) error {
	var buf bytes.Buffer
	if err := Encode(&buf, schema, fingerprint); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace snapshot %q: %w", path, err)
	}
	return nil
}

// FileFingerprint hashes the snapshot contents at path.
func FileFingerprint(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
