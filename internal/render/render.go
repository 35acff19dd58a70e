package render

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Supported formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
	FormatGo   = "go"
)

// Options selects how a document is written.
type Options struct {
	Format    string
	GoPackage string
}

// Write renders doc to w in the requested format.
func Write(w io.Writer, doc Document, opts Options) error {
	switch opts.Format {
	case "", FormatYAML:
		return WriteYAML(w, doc)
	case FormatJSON:
		return WriteJSON(w, doc)
	case FormatGo:
		pkg := opts.GoPackage
		if pkg == "" {
			pkg = "models"
		}
		return WriteGo(w, pkg, doc)
	default:
		return fmt.Errorf("unsupported output format %q", opts.Format)
	}
}

// WriteFile renders doc to path, or to stdout when path is "-" or empty.
// Files are replaced atomically so watchers never see partial output.
func WriteFile(path string, doc Document, opts Options) error {
	if path == "" || path == "-" {
		return Write(os.Stdout, doc, opts)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".render-*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, doc, opts); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %q: %w", path, err)
	}
	return nil
}
