// Package placement copies curated files and series into the output tree.
//
// Destinations follow <root>/<subject>/<timepoint-label>/<bucket-label>.
// Placement never overwrites: when the destination name is taken, the
// existing object is renamed to the first free <name>_<n> and the incoming
// object takes the canonical name.
package placement

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"github.com/mrsinham/rtcurate/internal/outcome"
)

// ErrLocked is returned by Lock when another run holds the output root.
var ErrLocked = errors.New("output root is locked by another run")

// Placer writes into one output root. Placements into the same destination
// path must not run concurrently; distinct destinations are safe.
type Placer struct {
	Root string

	logger     *slog.Logger
	mu         sync.Mutex
	collisions atomic.Int64
}

// New returns a Placer rooted at root.
func New(root string, logger *slog.Logger) *Placer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Placer{Root: root, logger: logger}
}

// Collisions returns how many existing objects were renamed so far.
func (p *Placer) Collisions() int64 {
	return p.collisions.Load()
}

// Dir returns <root>/<subject>/<timepoint>/<label>, creating it if needed.
// label may contain several path elements, for example "RTDOSE/1-RBE_Used".
func (p *Placer) Dir(subject, timepoint, label string) (string, error) {
	for _, part := range []string{subject, timepoint} {
		if err := checkName(part); err != nil {
			return "", err
		}
	}
	dir := filepath.Join(p.Root, subject, timepoint, filepath.FromSlash(label))
	if rel, err := filepath.Rel(p.Root, dir); err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("label %q escapes the output root", label)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create destination %s: %w", dir, err)
	}
	return dir, nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid path element %q", name)
	}
	return nil
}

// PlaceFile copies the file src into dir as name (the base name of src when
// name is empty) and returns the destination path.
func (p *Placer) PlaceFile(src, dir, name string) (string, error) {
	if name == "" {
		name = filepath.Base(src)
	}
	dest := filepath.Join(dir, name)
	if err := p.claim(dest); err != nil {
		return "", err
	}
	if err := copyFile(src, dest); err != nil {
		return "", fmt.Errorf("copy %s to %s: %w", src, dest, err)
	}
	return dest, nil
}

// PlaceTree copies the directory src into dir as name (the base name of src
// when name is empty) and returns the destination path.
func (p *Placer) PlaceTree(src, dir, name string) (string, error) {
	if name == "" {
		name = filepath.Base(src)
	}
	dest := filepath.Join(dir, name)
	if err := p.claim(dest); err != nil {
		return "", err
	}
	if err := CopyTree(src, dest); err != nil {
		return "", fmt.Errorf("copy %s to %s: %w", src, dest, err)
	}
	return dest, nil
}

// claim frees dest by renaming whatever is there to the first free
// dest_<n>, n starting at 1.
func (p *Placer) claim(dest string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := os.Lstat(dest); errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("stat %s: %w", dest, err)
	}

	for n := 1; ; n++ {
		alt := fmt.Sprintf("%s_%d", dest, n)
		if _, err := os.Lstat(alt); errors.Is(err, fs.ErrNotExist) {
			if err := os.Rename(dest, alt); err != nil {
				return fmt.Errorf("rename %s: %w", dest, err)
			}
			p.collisions.Add(1)
			p.logger.Warn("destination exists, renamed previous object",
				"path", dest,
				"renamed_to", alt,
				"error", outcome.ErrDestinationCollision,
			)
			return nil
		} else if err != nil {
			return fmt.Errorf("stat %s: %w", alt, err)
		}
	}
}

// CopyTree recursively copies the directory src to dest, which must not
// exist yet as a file.
func CopyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

// copyFile streams src to dst, keeping the source mode and modification time.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// Lock takes an exclusive lock guarding root. The lock file lives next to
// root (root + ".lock") so it never shows up in the curated tree.
func Lock(root string) (*flock.Flock, error) {
	root = filepath.Clean(root)
	if err := os.MkdirAll(filepath.Dir(root), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(root + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, root)
	}
	return lock, nil
}
