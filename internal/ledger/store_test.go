package ledger_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mrsinham/rtcurate/internal/ledger"
	"github.com/mrsinham/rtcurate/internal/outcome"
)

func openStore(t *testing.T) (*ledger.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	store, err := ledger.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestRecordRun_RoundTrip(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	run := ledger.Run{
		ID:         "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		InputDir:   "/in",
		OutputDir:  "/out",
		Files:      120,
		Unreadable: 2,
		Collisions: 1,
		Warnings:   []string{"first", "second"},
		Outcomes: []outcome.Outcome{
			{Kind: outcome.Success, Subject: "sub01", Timepoint: "20200110", Stage: "rt", Detail: "20200110_RT"},
			{
				Kind: outcome.CTOnlyFallback, Subject: "sub02", Timepoint: "20200111", Stage: "rt",
				Err: outcome.ErrNoApprovedPlan,
			},
			{
				Kind: outcome.ConversionError, Subject: "sub01", Timepoint: "20200110", Series: "T1", Stage: "route",
				Err: fmt.Errorf("dcm2niix exit 1: %w", outcome.ErrConversionFailure),
			},
		},
		Volumes: []string{"/out/sub01/20200110/T1/T1.nii.gz"},
	}
	if err := store.RecordRun(ctx, run); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	got, err := store.LastRun(ctx)
	if err != nil {
		t.Fatalf("LastRun failed: %v", err)
	}
	if got.ID != "run-1" || got.Files != 120 || got.Unreadable != 2 || got.Collisions != 1 {
		t.Fatalf("unexpected run: %+v", got)
	}
	if !got.StartedAt.Equal(started) || !got.FinishedAt.Equal(started.Add(time.Minute)) {
		t.Errorf("times = %v, %v", got.StartedAt, got.FinishedAt)
	}
	if len(got.Warnings) != 2 || got.Warnings[1] != "second" {
		t.Errorf("warnings = %v", got.Warnings)
	}
	if len(got.Outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(got.Outcomes))
	}
	if got.Outcomes[1].Kind != outcome.CTOnlyFallback || !errors.Is(got.Outcomes[1].Err, outcome.ErrNoApprovedPlan) {
		t.Errorf("outcome[1] = %+v", got.Outcomes[1])
	}
	conv := got.Outcomes[2]
	if conv.Series != "T1" || !errors.Is(conv.Err, outcome.ErrConversionFailure) {
		t.Errorf("outcome[2] = %+v", conv)
	}
	if conv.Err.Error() != "dcm2niix exit 1: conversion failure" {
		t.Errorf("error text = %q", conv.Err.Error())
	}
	if got.Outcomes[0].Err != nil {
		t.Errorf("outcome[0] should have no error, got %v", got.Outcomes[0].Err)
	}
	if len(got.Volumes) != 1 || got.Volumes[0] != run.Volumes[0] {
		t.Errorf("volumes = %v", got.Volumes)
	}
}

func TestLastRun_PicksLatest(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new", "middle"} {
		offset := map[string]time.Duration{"old": 0, "new": 2 * time.Hour, "middle": time.Hour}[id]
		if err := store.RecordRun(ctx, ledger.Run{ID: id, StartedAt: base.Add(offset)}); err != nil {
			t.Fatalf("RecordRun %d: %v", i, err)
		}
	}
	got, err := store.LastRun(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "new" {
		t.Errorf("LastRun = %s, want new", got.ID)
	}
}

func TestLastRun_Empty(t *testing.T) {
	store, _ := openStore(t)
	if _, err := store.LastRun(context.Background()); !errors.Is(err, ledger.ErrNoRuns) {
		t.Errorf("LastRun on empty ledger = %v, want ErrNoRuns", err)
	}
}

func TestRecordRun_Rejects(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	if err := store.RecordRun(ctx, ledger.Run{}); err == nil {
		t.Error("expected error for empty id")
	}
	if err := store.RecordRun(ctx, ledger.Run{ID: "dup"}); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordRun(ctx, ledger.Run{ID: "dup"}); err == nil {
		t.Error("expected error for duplicate id")
	}
}

func TestOpen_Reopen(t *testing.T) {
	store, path := openStore(t)
	ctx := context.Background()
	if err := store.RecordRun(ctx, ledger.Run{ID: "keep"}); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	again, err := ledger.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	if _, err := again.GetRun(ctx, "keep"); err != nil {
		t.Errorf("GetRun after reopen: %v", err)
	}
}

func TestOpen_SchemaMismatch(t *testing.T) {
	store, path := openStore(t)
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	if _, err := ledger.Open(context.Background(), path); !errors.Is(err, ledger.ErrSchemaMismatch) {
		t.Errorf("Open = %v, want ErrSchemaMismatch", err)
	}
}
