// Package archive moves run directories left by a previous sweep out of the
// workspace namespace instead of deleting them, and rotates old archives.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// archivePrefix starts the name of every archive directory.
const archivePrefix = "sweep-"

// timestampLayout is the time format embedded in archive names.
const timestampLayout = "20060102-150405"

// Info describes one archived sweep.
type Info struct {
	Path      string
	CreatedAt time.Time
	Runs      int
}

// RetentionPolicy decides which archives to keep.
type RetentionPolicy interface {
	Apply(archives []Info) (keep []Info)
}

// CountPolicy keeps the N most recent archives.
type CountPolicy struct {
	MaxCount int
}

// Apply keeps the first MaxCount archives (assumed sorted newest-first).
func (p *CountPolicy) Apply(archives []Info) []Info {
	if p.MaxCount < 0 {
		return archives
	}
	if len(archives) <= p.MaxCount {
		return archives
	}
	return archives[:p.MaxCount]
}

// GeneratePath returns a fresh timestamped archive directory path under root.
func GeneratePath(root string, now time.Time) string {
	base := archivePrefix + now.Format(timestampLayout)
	path := filepath.Join(root, base)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(root, fmt.Sprintf("%s-%d", base, i))
	}
}

// parseName splits an archive directory name into its timestamp and the
// collision suffix GeneratePath appended, 0 when there is none.
func parseName(name string) (stamp string, n int) {
	rest := strings.TrimPrefix(name, archivePrefix)
	if len(rest) <= len(timestampLayout) {
		return rest, 0
	}
	stamp, suffix := rest[:len(timestampLayout)], rest[len(timestampLayout):]
	n, err := strconv.Atoi(strings.TrimPrefix(suffix, "-"))
	if err != nil || !strings.HasPrefix(suffix, "-") {
		return rest, 0
	}
	return stamp, n
}

// Archive moves every directory in dirs into a new archive directory under
// root and returns its path. Nothing is created when dirs is empty.
func Archive(dirs []string, root string) (string, error) {
	if len(dirs) == 0 {
		return "", nil
	}

	dest := GeneratePath(root, time.Now())
	if err := os.MkdirAll(dest, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	for _, dir := range dirs {
		target := filepath.Join(dest, filepath.Base(dir))
		if err := os.Rename(dir, target); err != nil {
			return dest, fmt.Errorf("failed to archive %s: %w", filepath.Base(dir), err)
		}
	}

	return dest, nil
}

// List scans root for archive directories and returns them sorted newest-first.
func List(root string) ([]Info, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading archive directory: %w", err)
	}

	var archives []Info
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), archivePrefix) {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(root, e.Name())
		runs, _ := os.ReadDir(path)
		archives = append(archives, Info{
			Path:      path,
			CreatedAt: info.ModTime(),
			Runs:      len(runs),
		})
	}

	// Newest first: by embedded timestamp, then by collision suffix.
	sort.Slice(archives, func(i, j int) bool {
		ti, ni := parseName(filepath.Base(archives[i].Path))
		tj, nj := parseName(filepath.Base(archives[j].Path))
		if ti != tj {
			return ti > tj
		}
		return ni > nj
	})

	return archives, nil
}

// Rotate removes every archive under root that policy does not keep.
func Rotate(root string, policy RetentionPolicy) error {
	archives, err := List(root)
	if err != nil {
		return err
	}

	keep := make(map[string]bool)
	for _, a := range policy.Apply(archives) {
		keep[a.Path] = true
	}

	for _, a := range archives {
		if keep[a.Path] {
			continue
		}
		if err := os.RemoveAll(a.Path); err != nil {
			return fmt.Errorf("failed to remove old archive %s: %w", filepath.Base(a.Path), err)
		}
	}

	return nil
}
