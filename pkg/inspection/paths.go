// Package inspection implements the coarse-offset consistency analysis
// over a parsed SBEM acquisition: aggregation of per-section tile ID
// maps and coarse shift tensors into keyed archives, localization of
// degenerate (infinite) shift values, and windowed outlier detection on
// per-tile shift traces.
package inspection

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

// The acquisition storage is reachable both as a Windows UNC share and
// as a Unix mount; paths recorded in configs may use either style.
const (
	uncPrefix = `\\tungsten-nas.fmi.ch\tungsten`
	unixMount = "/tungstenfs"
)

// sectionDirPattern matches section directory names of the form
// sNNNN_gM (section number, grid number).
var sectionDirPattern = regexp.MustCompile(`^s(\d+)_g\d+$`)

// NormalizePath rewrites a path recorded on the other platform into the
// host convention, translating the storage UNC prefix and separator
// style. Paths already in host style pass through unchanged. Applied
// only at I/O boundaries (the experiment root from config or flags).
func NormalizePath(path string) string {
	return normalizeFor(runtime.GOOS, path)
}

// normalizeFor is NormalizePath with the OS pinned, for tests.
func normalizeFor(goos, path string) string {
	if goos == "windows" {
		if strings.Contains(path, uncPrefix) {
			path = strings.Replace(path, uncPrefix, "W:", 1)
			return strings.ReplaceAll(path, `\`, "/")
		}
		if strings.Contains(path, "/") {
			path = strings.Replace(path, unixMount, uncPrefix, 1)
			return strings.ReplaceAll(path, "/", `\`)
		}
		return path
	}
	if strings.Contains(path, `\`) {
		path = strings.Replace(path, uncPrefix, unixMount, 1)
		path = strings.ReplaceAll(path, `\`, "/")
		// A foreign UNC host leaves a leading double slash behind.
		if strings.HasPrefix(path, "//") {
			path = path[1:]
		}
	}
	return path
}

// SectionNumber extracts the numeric section ID from a section directory
// path ("sections/s0042_g0" -> 42). ok is false when the name does not
// follow the convention.
func SectionNumber(dir string) (int, bool) {
	name := filepath.Base(dir)
	m := sectionDirPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	num, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return num, true
}

// ListSectionDirs returns the section directories under sectionsDir,
// sorted by section number. Non-matching entries are ignored.
func ListSectionDirs(sectionsDir string) ([]string, error) {
	entries, err := os.ReadDir(sectionsDir)
	if err != nil {
		return nil, fmt.Errorf("listing section directories: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, ok := SectionNumber(e.Name()); !ok {
			continue
		}
		dirs = append(dirs, filepath.Join(sectionsDir, e.Name()))
	}
	sort.Slice(dirs, func(i, j int) bool {
		ni, _ := SectionNumber(dirs[i])
		nj, _ := SectionNumber(dirs[j])
		return ni < nj
	})
	return dirs, nil
}
