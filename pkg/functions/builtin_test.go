package functions

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func builtinsRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	workspace := t.TempDir()
	r := NewRegistry()
	RegisterBuiltins(r, workspace)
	return r, workspace
}

func TestBuiltinWriteThenRead(t *testing.T) {
	r, _ := builtinsRegistry(t)

	out, err := r.Call("write_file", map[string]any{"path": "notes/a.txt", "content": "hello"})
	if err != nil {
		t.Fatalf("write_file failed: %v", err)
	}
	if !strings.Contains(out, "5 bytes") {
		t.Errorf("write_file = %q", out)
	}

	got, err := r.Call("read_file", map[string]any{"path": "notes/a.txt"})
	if err != nil {
		t.Fatalf("read_file failed: %v", err)
	}
	if got != "hello" {
		t.Errorf("read_file = %q, want hello", got)
	}
}

func TestBuiltinReadMissingFile(t *testing.T) {
	r, _ := builtinsRegistry(t)

	_, err := r.Call("read_file", map[string]any{"path": "nope.txt"})
	if err == nil || !strings.Contains(err.Error(), "file not found") {
		t.Errorf("read_file = %v, want file-not-found", err)
	}
}

func TestBuiltinRejectsEscape(t *testing.T) {
	r, workspace := builtinsRegistry(t)

	outside := filepath.Join(filepath.Dir(workspace), "secret.txt")
	if err := os.WriteFile(outside, []byte("top secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Remove(outside) })

	if _, err := r.Call("read_file", map[string]any{"path": "../secret.txt"}); err == nil {
		t.Error("read_file followed a .. escape out of the workspace")
	}
	if _, err := r.Call("write_file", map[string]any{"path": "../evil.txt", "content": "x"}); err == nil {
		t.Error("write_file escaped the workspace")
	}
}

func TestBuiltinListDir(t *testing.T) {
	r, workspace := builtinsRegistry(t)

	if err := os.MkdirAll(filepath.Join(workspace, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(workspace, "b.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := r.Call("list_dir", map[string]any{})
	if err != nil {
		t.Fatalf("list_dir failed: %v", err)
	}
	if !strings.Contains(out, "sub/") {
		t.Errorf("list_dir missing directory marker: %q", out)
	}
	if !strings.Contains(out, "b.txt") {
		t.Errorf("list_dir missing file: %q", out)
	}

	empty, err := r.Call("list_dir", map[string]any{"path": "sub"})
	if err != nil {
		t.Fatalf("list_dir(sub) failed: %v", err)
	}
	if empty != "(empty)" {
		t.Errorf("list_dir(sub) = %q, want (empty)", empty)
	}
}

func TestBuiltinMissingArgs(t *testing.T) {
	r, _ := builtinsRegistry(t)

	if _, err := r.Call("read_file", map[string]any{}); err == nil {
		t.Error("read_file without path succeeded")
	}
	if _, err := r.Call("write_file", map[string]any{"path": "a.txt"}); err == nil {
		t.Error("write_file without content succeeded")
	}
}
