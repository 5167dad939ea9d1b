package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPathValidator_Validate(t *testing.T) {
	validator, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}
	defer validator.Close()

	tests := []struct {
		name    string
		input   string
		want    string
		errType error
	}{
		{"simple file", "record.json", "record.json", nil},
		{"nested file", "a/b.json", filepath.Join("a", "b.json"), nil},
		{"dot segments", "./a/../b.json", "b.json", nil},
		{"empty", "", "", ErrEmptyPath},
		{"absolute", "/etc/passwd", "", ErrAbsolutePath},
		{"parent", "../outside.json", "", ErrPathEscapes},
		{"hidden parent", "a/../../outside.json", "", ErrPathEscapes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validator.Validate(tt.input)
			if tt.errType != nil {
				if !errors.Is(err, tt.errType) {
					t.Errorf("Validate(%q) error = %v, want %v", tt.input, err, tt.errType)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Validate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPathValidator_NewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sync", "folder")
	validator, err := New(dir)
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}
	defer validator.Close()

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("Directory was not created at %q", dir)
	}
	if validator.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", validator.Dir(), dir)
	}
}

func TestPathValidator_ReadWriteRemove(t *testing.T) {
	tmpDir := t.TempDir()
	validator, err := New(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}
	defer validator.Close()

	if err := validator.WriteFile("a.json", []byte("first"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := validator.WriteFile("a.json", []byte("2"), 0600); err != nil {
		t.Fatalf("WriteFile overwrite failed: %v", err)
	}

	data, err := validator.ReadFile("a.json")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "2" {
		t.Errorf("ReadFile = %q, want %q (file must be truncated)", data, "2")
	}

	if err := validator.Remove("a.json"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := validator.Remove("a.json"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Remove of missing file error = %v, want os.ErrNotExist", err)
	}
}

func TestPathValidator_RejectsEscapes(t *testing.T) {
	tmpDir := t.TempDir()
	validator, err := New(filepath.Join(tmpDir, "inner"))
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}
	defer validator.Close()

	if err := validator.WriteFile("../escaped.json", []byte("x"), 0600); err == nil {
		t.Error("Expected error writing outside the root")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "escaped.json")); !os.IsNotExist(err) {
		t.Error("File was written outside the root")
	}
	if _, err := validator.ReadFile("/etc/passwd"); err == nil {
		t.Error("Expected error reading an absolute path")
	}
}

func TestPathValidator_SymlinkEscape(t *testing.T) {
	tmpDir := t.TempDir()
	outside := filepath.Join(tmpDir, "outside.json")
	if err := os.WriteFile(outside, []byte("secret"), 0600); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	inner := filepath.Join(tmpDir, "inner")
	validator, err := New(inner)
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}
	defer validator.Close()

	if err := os.Symlink(outside, filepath.Join(inner, "link.json")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if _, err := validator.ReadFile("link.json"); err == nil {
		t.Error("Expected os.Root to refuse a symlink leaving the root")
	}
}

func TestPathValidator_List(t *testing.T) {
	tmpDir := t.TempDir()
	validator, err := New(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}
	defer validator.Close()

	for _, name := range []string{"b.json", "a.json", "notes.txt"} {
		if err := validator.WriteFile(name, []byte("{}"), 0600); err != nil {
			t.Fatalf("WriteFile(%q) failed: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(tmpDir, "dir.json"), 0700); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	names, err := validator.List(".json")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 2 || names[0] != "a.json" || names[1] != "b.json" {
		t.Errorf("List = %v, want [a.json b.json]", names)
	}
}
