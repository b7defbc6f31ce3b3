// Package workspace owns the temp directory root for one generate call:
// deriving cache-key filenames, writing files atomically so a `*.part`
// file is never visible to a later phase, and tearing the root down on
// every exit path when configured to do so.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/clipweave/stitcher/internal/platform/fs"
	"github.com/google/renameio/v2"
)

// CacheKey identifies a raw or canonical segment on disk. Padding is part
// of the key so cached files from different padding settings are never
// incorrectly reused.
type CacheKey struct {
	VideoID   string
	StartTime float64
	Duration  float64
	PadStart  float64
	PadEnd    float64
}

// Digest returns a stable, filesystem-safe identifier for the key.
func (k CacheKey) Digest() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%.6f|%.6f|%.6f|%.6f", k.VideoID, k.StartTime, k.Duration, k.PadStart, k.PadEnd)
	return hex.EncodeToString(h.Sum(nil))[:24]
}

// Workspace owns one generate call's temp directory tree.
type Workspace struct {
	Root string
}

// New creates a fresh workspace rooted under parent (os.TempDir() if empty),
// with the downloads/processed/placeholders/output layout from the external
// interfaces contract.
func New(parent string) (*Workspace, error) {
	if parent == "" {
		parent = os.TempDir()
	}
	root, err := os.MkdirTemp(parent, "stitcher-*")
	if err != nil {
		return nil, fmt.Errorf("workspace: create root: %w", err)
	}
	ws := &Workspace{Root: root}
	for _, dir := range []string{ws.DownloadsDir(), ws.ProcessedDir(), ws.PlaceholdersDir(), ws.OutputDir()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			_ = os.RemoveAll(root)
			return nil, fmt.Errorf("workspace: create %s: %w", dir, err)
		}
	}
	return ws, nil
}

func (w *Workspace) DownloadsDir() string    { return filepath.Join(w.Root, "downloads") }
func (w *Workspace) ProcessedDir() string    { return filepath.Join(w.Root, "processed") }
func (w *Workspace) PlaceholdersDir() string { return filepath.Join(w.Root, "placeholders") }
func (w *Workspace) OutputDir() string       { return filepath.Join(w.Root, "output") }

// RawPath returns the cache-addressed path for a raw downloaded segment.
func (w *Workspace) RawPath(key CacheKey, ext string) string {
	return filepath.Join(w.DownloadsDir(), key.Digest()+ext)
}

// CanonicalPath returns the cache-addressed path for a canonicalized segment.
func (w *Workspace) CanonicalPath(key CacheKey) string {
	return filepath.Join(w.ProcessedDir(), key.Digest()+"_canonical.mp4")
}

// PlaceholderPath returns the path for a placeholder title-card segment at
// index i carrying word.
func (w *Workspace) PlaceholderPath(i int, word string) string {
	return filepath.Join(w.PlaceholdersDir(), fmt.Sprintf("%d_%s.mp4", i, sanitizeFilename(word)))
}

// OutputPath returns the final artifact path for name, confined beneath the
// output directory. name ultimately carries a caller-chosen artifact name
// end to end, so it's resolved through the same symlink/traversal guard the
// rest of this codebase's path handling uses rather than a bare Join.
func (w *Workspace) OutputPath(name string) (string, error) {
	p, err := fs.ConfineRelPath(w.OutputDir(), name)
	if err != nil {
		return "", fmt.Errorf("workspace: output path %q: %w", name, err)
	}
	return p, nil
}

// WriteAtomic copies all of r into dest via a temp file that is
// fsync'd and renamed into place, so a crash mid-write never leaves a
// partial file at dest.
func WriteAtomic(dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("workspace: mkdir %s: %w", dir, err)
	}
	t, err := renameio.TempFile(dir, dest)
	if err != nil {
		return fmt.Errorf("workspace: create temp file for %s: %w", dest, err)
	}
	defer t.Cleanup()

	if _, err := io.Copy(t, r); err != nil {
		return fmt.Errorf("workspace: write %s: %w", dest, err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("workspace: finalize %s: %w", dest, err)
	}
	return nil
}

// Cleanup removes the intermediate canonical and placeholder directories,
// and the downloads directory too unless preserveCache is set, in which
// case cached raw segments are kept. The output directory is never
// removed here.
func (w *Workspace) Cleanup(preserveCache bool) error {
	if !preserveCache {
		if err := os.RemoveAll(w.DownloadsDir()); err != nil {
			return err
		}
	}
	if err := os.RemoveAll(w.ProcessedDir()); err != nil {
		return err
	}
	return os.RemoveAll(w.PlaceholdersDir())
}

// Destroy removes the entire workspace root, including the output directory.
// Callers should have already copied any FinalArtifact out of OutputDir.
func (w *Workspace) Destroy() error {
	return os.RemoveAll(w.Root)
}

func sanitizeFilename(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "word"
	}
	return string(out)
}
