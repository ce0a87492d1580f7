package inspection

import (
	"os"
	"path/filepath"
	"testing"
)

// TestNormalizeForLinux covers Windows-style inputs on a Unix host
func TestNormalizeForLinux(t *testing.T) {
	got := normalizeFor("linux", `\\tungsten-nas.fmi.ch\tungsten\data\exp1`)
	if got != "/tungstenfs/data/exp1" {
		t.Errorf("Expected /tungstenfs/data/exp1, got %q", got)
	}

	// Foreign UNC host: separators converted, leading slash collapsed
	got = normalizeFor("linux", `\\other-host\share\x`)
	if got != "/other-host/share/x" {
		t.Errorf("Expected /other-host/share/x, got %q", got)
	}

	// Native path passes through
	got = normalizeFor("linux", "/data/exp1")
	if got != "/data/exp1" {
		t.Errorf("Expected passthrough, got %q", got)
	}
}

// TestNormalizeForWindows covers Unix-style and UNC inputs on Windows
func TestNormalizeForWindows(t *testing.T) {
	got := normalizeFor("windows", "/tungstenfs/data/exp1")
	if got != `\\tungsten-nas.fmi.ch\tungsten\data\exp1` {
		t.Errorf("Expected UNC path, got %q", got)
	}

	// UNC form is mapped to the drive letter
	got = normalizeFor("windows", `\\tungsten-nas.fmi.ch\tungsten\data`)
	if got != "W:/data" {
		t.Errorf("Expected W:/data, got %q", got)
	}

	// Native path passes through
	got = normalizeFor("windows", `C:\data`)
	if got != `C:\data` {
		t.Errorf("Expected passthrough, got %q", got)
	}
}

// TestSectionNumber parses the sNNNN_gM directory convention
func TestSectionNumber(t *testing.T) {
	num, ok := SectionNumber("/exp/sections/s0042_g1")
	if !ok || num != 42 {
		t.Errorf("Expected 42, got %d ok=%v", num, ok)
	}

	num, ok = SectionNumber("s7_g0")
	if !ok || num != 7 {
		t.Errorf("Expected 7, got %d ok=%v", num, ok)
	}

	for _, bad := range []string{"section_1", "s12", "s_g1", "s12_h3", "stitched"} {
		if _, ok := SectionNumber(bad); ok {
			t.Errorf("Expected %q to be rejected", bad)
		}
	}
}

// TestListSectionDirs checks filtering and numeric (not lexical) sorting
func TestListSectionDirs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"s0002_g0", "s0010_g1", "s0001_g0", "notes"} {
		if err := os.Mkdir(filepath.Join(dir, name), 0755); err != nil {
			t.Fatalf("Mkdir failed: %v", err)
		}
	}
	// A matching name that is a file, not a directory, is skipped
	if err := os.WriteFile(filepath.Join(dir, "s0003_g0"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	dirs, err := ListSectionDirs(dir)
	if err != nil {
		t.Fatalf("ListSectionDirs failed: %v", err)
	}

	expected := []int{1, 2, 10}
	if len(dirs) != len(expected) {
		t.Fatalf("Expected %d section dirs, got %d: %v", len(expected), len(dirs), dirs)
	}
	for i, want := range expected {
		num, _ := SectionNumber(dirs[i])
		if num != want {
			t.Errorf("Expected section %d at position %d, got %d", want, i, num)
		}
	}
}
