package toolexec

import (
	"errors"
	"strings"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	orig := lookPath
	t.Cleanup(func() { lookPath = orig })
	lookPath = func(file string) (string, error) {
		if file == "dcm2niix" {
			return "/usr/bin/dcm2niix", nil
		}
		return "", errors.New("not found")
	}

	statuses := CheckBinaries([]Requirement{
		{Name: "converter", Command: "dcm2niix"},
		{Name: "decompressor", Command: " gdcmconv ", Optional: true},
		{Name: "empty", Command: ""},
	})
	if len(statuses) != 3 {
		t.Fatalf("got %d statuses, want 3", len(statuses))
	}
	if !statuses[0].Available {
		t.Errorf("dcm2niix should be available: %+v", statuses[0])
	}
	if statuses[1].Available || !strings.Contains(statuses[1].Detail, "gdcmconv") {
		t.Errorf("gdcmconv should be reported missing: %+v", statuses[1])
	}
	if statuses[1].Command != "gdcmconv" {
		t.Errorf("command should be trimmed, got %q", statuses[1].Command)
	}
	if statuses[2].Available || statuses[2].Detail != "command not configured" {
		t.Errorf("empty command status = %+v", statuses[2])
	}
}

func TestTail(t *testing.T) {
	if got := tail("  short  ", 10); got != "short" {
		t.Errorf("tail() = %q", got)
	}
	if got := tail("abcdefghij", 4); got != "...ghij" {
		t.Errorf("tail() = %q", got)
	}
}
