package dicom

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// scriptedExec fails the first failures calls, then writes "raw" to the
// output argument.
type scriptedExec struct {
	failures int
	calls    int
}

func (s *scriptedExec) Run(_ context.Context, _ string, args []string) ([]byte, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, errors.New("gdcmconv: exit status 1")
	}
	return nil, os.WriteFile(args[len(args)-1], []byte("raw"), 0644)
}

func TestGDCM_Decompress(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		retries   int
		wantCalls int
		wantErr   bool
	}{
		{"first try", 0, 1, 1, false},
		{"retried once", 1, 1, 2, false},
		{"retries exhausted", 2, 1, 2, true},
		{"no retries", 1, 0, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "IMG0001.dcm")
			if err := os.WriteFile(path, []byte("compressed"), 0644); err != nil {
				t.Fatal(err)
			}
			exec := &scriptedExec{failures: tt.failures}
			g, err := NewGDCM("gdcmconv", 0, WithExecutor(exec), WithRetries(tt.retries))
			if err != nil {
				t.Fatal(err)
			}

			err = g.Decompress(context.Background(), path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decompress() error = %v, wantErr %v", err, tt.wantErr)
			}
			if exec.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", exec.calls, tt.wantCalls)
			}

			data, _ := os.ReadFile(path)
			want := "raw"
			if tt.wantErr {
				want = "compressed"
			}
			if string(data) != want {
				t.Errorf("file content = %q, want %q", data, want)
			}
			if _, err := os.Stat(path + ".raw"); !os.IsNotExist(err) {
				t.Error("temporary output left behind")
			}
		})
	}
}

func TestNewGDCM_RequiresBinary(t *testing.T) {
	if _, err := NewGDCM("  ", 0); err == nil {
		t.Error("empty binary should fail")
	}
}
