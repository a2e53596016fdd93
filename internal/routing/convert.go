package routing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mrsinham/rtcurate/internal/toolexec"
)

// Converter turns a DICOM series directory into a single volume written to
// outDir as name plus the converter's extension. It returns the volume path.
type Converter interface {
	Convert(ctx context.Context, seriesDir, outDir, name string) (string, error)
}

// Option configures a Dcm2niix converter.
type Option func(*Dcm2niix)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec toolexec.Executor) Option {
	return func(d *Dcm2niix) {
		if exec != nil {
			d.exec = exec
		}
	}
}

// Dcm2niix converts series to gzipped NIfTI with the dcm2niix tool.
type Dcm2niix struct {
	binary  string
	timeout time.Duration
	exec    toolexec.Executor
}

// NewDcm2niix constructs a converter calling binary, each call bounded by
// timeout (zero disables the bound).
func NewDcm2niix(binary string, timeout time.Duration, opts ...Option) (*Dcm2niix, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("dcm2niix binary required")
	}
	d := &Dcm2niix{binary: binary, timeout: timeout, exec: toolexec.CommandExecutor{}}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Convert runs `dcm2niix -o outDir -f name -z y -p n seriesDir` and checks
// that outDir/name.nii.gz was produced.
func (d *Dcm2niix) Convert(ctx context.Context, seriesDir, outDir, name string) (string, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	args := []string{"-o", outDir, "-f", name, "-z", "y", "-p", "n", seriesDir}
	if _, err := d.exec.Run(ctx, d.binary, args); err != nil {
		return "", err
	}
	volume := filepath.Join(outDir, name+".nii.gz")
	if _, err := os.Stat(volume); err != nil {
		return "", fmt.Errorf("dcm2niix produced no volume for %s: %w", seriesDir, err)
	}
	return volume, nil
}

// Queue collects converted volumes awaiting classification. It is safe for
// concurrent use.
type Queue struct {
	mu    sync.Mutex
	items []string
}

// Push appends a volume path.
func (q *Queue) Push(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, path)
}

// Items returns the queued paths, sorted.
func (q *Queue) Items() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := append([]string(nil), q.items...)
	sort.Strings(out)
	return out
}

// Len returns the number of queued volumes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
