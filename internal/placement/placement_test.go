package placement

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestDir_Idempotent(t *testing.T) {
	p := New(t.TempDir(), nil)
	a, err := p.Dir("sub01", "20200101_RT", "RTDOSE/1-RBE_Used")
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	b, err := p.Dir("sub01", "20200101_RT", "RTDOSE/1-RBE_Used")
	if err != nil {
		t.Fatalf("second Dir: %v", err)
	}
	if a != b {
		t.Errorf("Dir not stable: %s vs %s", a, b)
	}
	want := filepath.Join(p.Root, "sub01", "20200101_RT", "RTDOSE", "1-RBE_Used")
	if a != want {
		t.Errorf("Dir = %s, want %s", a, want)
	}
	if p.Collisions() != 0 {
		t.Errorf("creating a directory twice is not a collision")
	}
}

func TestDir_Invalid(t *testing.T) {
	p := New(t.TempDir(), nil)
	tests := []struct{ subject, timepoint, label string }{
		{"", "tp", "x"},
		{"..", "tp", "x"},
		{"a/b", "tp", "x"},
		{"sub", "tp", "../../../escape"},
	}
	for _, tt := range tests {
		if _, err := p.Dir(tt.subject, tt.timepoint, tt.label); err == nil {
			t.Errorf("Dir(%q, %q, %q) should fail", tt.subject, tt.timepoint, tt.label)
		}
	}
}

// Placing A then B at the same name leaves B canonical and A at _1; a third
// placement pushes B to _2.
func TestPlaceFile_CollisionRename(t *testing.T) {
	src := t.TempDir()
	p := New(t.TempDir(), nil)
	dir, err := p.Dir("sub", "tp", "RTPLAN/1-RTPLAN_Used")
	if err != nil {
		t.Fatal(err)
	}

	for i, content := range []string{"A", "B", "C"} {
		path := filepath.Join(src, content, "plan.dcm")
		writeFile(t, path, content)
		got, err := p.PlaceFile(path, dir, "")
		if err != nil {
			t.Fatalf("PlaceFile #%d: %v", i, err)
		}
		if got != filepath.Join(dir, "plan.dcm") {
			t.Errorf("PlaceFile #%d returned %s", i, got)
		}
	}

	checks := map[string]string{
		"plan.dcm":   "C",
		"plan.dcm_1": "A",
		"plan.dcm_2": "B",
	}
	for name, want := range checks {
		if got := readFile(t, filepath.Join(dir, name)); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	if p.Collisions() != 2 {
		t.Errorf("Collisions() = %d, want 2", p.Collisions())
	}
}

func TestPlaceTree_CollisionRename(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "first", "IMG1.dcm"), "first")
	writeFile(t, filepath.Join(src, "first", "nested", "IMG2.dcm"), "first-nested")
	writeFile(t, filepath.Join(src, "second", "IMG1.dcm"), "second")

	p := New(t.TempDir(), nil)
	dir, err := p.Dir("sub", "tp", "RTCT/Other_CT")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.PlaceTree(filepath.Join(src, "first"), dir, "CT-1"); err != nil {
		t.Fatalf("PlaceTree first: %v", err)
	}
	if got := readFile(t, filepath.Join(dir, "CT-1", "nested", "IMG2.dcm")); got != "first-nested" {
		t.Errorf("nested file = %q", got)
	}

	if _, err := p.PlaceTree(filepath.Join(src, "second"), dir, "CT-1"); err != nil {
		t.Fatalf("PlaceTree second: %v", err)
	}
	if got := readFile(t, filepath.Join(dir, "CT-1", "IMG1.dcm")); got != "second" {
		t.Errorf("canonical tree holds %q, want second", got)
	}
	if got := readFile(t, filepath.Join(dir, "CT-1_1", "IMG1.dcm")); got != "first" {
		t.Errorf("renamed tree holds %q, want first", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "CT-1", "nested")); !os.IsNotExist(err) {
		t.Errorf("incoming tree should not inherit the previous tree's content")
	}
}

func TestPlaceFile_SkipsTakenSuffix(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "x"), "orig")
	writeFile(t, filepath.Join(dir, "x_1"), "older")
	src := filepath.Join(t.TempDir(), "x")
	writeFile(t, src, "new")

	p := New(dir, nil)
	if _, err := p.PlaceFile(src, dir, ""); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(dir, "x_2")); got != "orig" {
		t.Errorf("x_2 = %q, want orig", got)
	}
	if got := readFile(t, filepath.Join(dir, "x_1")); got != "older" {
		t.Errorf("x_1 = %q, want older", got)
	}
}

func TestPlaceFile_MissingSource(t *testing.T) {
	p := New(t.TempDir(), nil)
	if _, err := p.PlaceFile(filepath.Join(p.Root, "nope"), p.Root, ""); err == nil {
		t.Error("missing source should fail")
	}
}

func TestLock(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out")
	first, err := Lock(root)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	if _, err := Lock(root); !errors.Is(err, ErrLocked) {
		t.Errorf("second Lock error = %v, want ErrLocked", err)
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	again, err := Lock(root)
	if err != nil {
		t.Fatalf("Lock after unlock: %v", err)
	}
	_ = again.Unlock()
}
