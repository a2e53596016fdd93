package dicom

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mrsinham/rtcurate/internal/toolexec"
)

// Decompressor rewrites a file in place with uncompressed pixel data.
type Decompressor interface {
	Decompress(ctx context.Context, path string) error
}

// GDCMOption configures a GDCM decompressor.
type GDCMOption func(*GDCM)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec toolexec.Executor) GDCMOption {
	return func(g *GDCM) {
		if exec != nil {
			g.exec = exec
		}
	}
}

// WithRetries sets how many times a failed call is retried.
func WithRetries(n int) GDCMOption {
	return func(g *GDCM) {
		if n >= 0 {
			g.retries = n
		}
	}
}

// GDCM decompresses files with `gdcmconv --raw`.
type GDCM struct {
	binary  string
	timeout time.Duration
	retries int
	exec    toolexec.Executor
}

// NewGDCM constructs a gdcmconv-backed decompressor. Each call is bounded by
// timeout and retried once by default.
func NewGDCM(binary string, timeout time.Duration, opts ...GDCMOption) (*GDCM, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("gdcmconv binary required")
	}
	g := &GDCM{
		binary:  binary,
		timeout: timeout,
		retries: 1,
		exec:    toolexec.CommandExecutor{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Decompress converts path to an uncompressed transfer syntax. The output
// is written next to path and renamed over it once the tool succeeds.
func (g *GDCM) Decompress(ctx context.Context, path string) error {
	tmp := path + ".raw"
	defer func() { _ = os.Remove(tmp) }()

	var lastErr error
	for attempt := 0; attempt <= g.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = g.run(ctx, path, tmp)
		if lastErr == nil {
			if err := os.Rename(tmp, path); err != nil {
				return fmt.Errorf("replace %s: %w", path, err)
			}
			return nil
		}
	}
	return fmt.Errorf("decompress %s: %w", path, lastErr)
}

func (g *GDCM) run(ctx context.Context, in, out string) error {
	runCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	_, err := g.exec.Run(runCtx, g.binary, []string{"--raw", in, out})
	return err
}
