package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"schemamap/internal/introspection"
	"schemamap/internal/snapshot"
)

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"--version"}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "schemamap "+Version) {
		t.Fatalf("unexpected version output %q", out.String())
	}
}

func TestRun_Help(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"--help"}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "--source.kind") {
		t.Fatalf("expected usage output, got %q", out.String())
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	if err := run([]string{"--no-such-flag"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unknown flag")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	err := run([]string{"--source.kind=snapshot", "--observability.metrics_enabled=false"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "validation") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRun_SnapshotToJSON(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "schema.yaml")
	out := filepath.Join(dir, "model.json")

	schema := &introspection.Schema{Tables: []introspection.Table{{
		Name:    "tbl_orders",
		Columns: []introspection.Column{{Name: "order_id", DataType: "int", IsPrimaryKey: true}},
	}}}
	if err := snapshot.WriteFile(in, schema, ""); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	err := run([]string{
		"--source.kind=snapshot",
		"--source.snapshot_path=" + in,
		"--output.format=json",
		"--output.path=" + out,
		"--observability.metrics_enabled=false",
	}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), `"name": "Order"`) {
		t.Fatalf("expected Order entity in output:\n%s", data)
	}
}
