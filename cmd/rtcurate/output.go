package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/mrsinham/rtcurate/internal/ledger"
	"github.com/mrsinham/rtcurate/internal/outcome"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("63"))

	warnStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w any) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func heading(w io.Writer, title string, fancy bool) {
	if fancy {
		fmt.Fprintln(w, titleStyle.Render(title))
		return
	}
	fmt.Fprintln(w, "== "+title+" ==")
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type outcomeView struct {
	Kind      string `json:"kind"`
	Subject   string `json:"subject"`
	Timepoint string `json:"timepoint"`
	Series    string `json:"series,omitempty"`
	Stage     string `json:"stage"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
}

type runView struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	InputDir   string        `json:"input_dir"`
	OutputDir  string        `json:"output_dir"`
	Files      int           `json:"files"`
	Unreadable int           `json:"unreadable"`
	Collisions int           `json:"collisions"`
	Warnings   []string      `json:"warnings,omitempty"`
	Outcomes   []outcomeView `json:"outcomes"`
	Volumes    []string      `json:"volumes,omitempty"`
}

func newRunView(run ledger.Run) runView {
	v := runView{
		ID:         run.ID,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		InputDir:   run.InputDir,
		OutputDir:  run.OutputDir,
		Files:      run.Files,
		Unreadable: run.Unreadable,
		Collisions: run.Collisions,
		Warnings:   run.Warnings,
		Outcomes:   make([]outcomeView, 0, len(run.Outcomes)),
		Volumes:    run.Volumes,
	}
	for _, o := range run.Outcomes {
		ov := outcomeView{
			Kind:      o.Kind.String(),
			Subject:   o.Subject,
			Timepoint: o.Timepoint,
			Series:    o.Series,
			Stage:     o.Stage,
			Detail:    o.Detail,
		}
		if o.Err != nil {
			ov.Error = o.Err.Error()
		}
		v.Outcomes = append(v.Outcomes, ov)
	}
	return v
}

// printRun renders the summary and the per-outcome table of a run.
func printRun(w io.Writer, run ledger.Run, fancy bool) {
	heading(w, "rtcurate run "+run.ID, fancy)
	fmt.Fprintf(w, "input:  %s\noutput: %s\n", run.InputDir, run.OutputDir)
	if !run.StartedAt.IsZero() && !run.FinishedAt.IsZero() {
		fmt.Fprintf(w, "took:   %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintln(w)

	summary := [][]string{
		{"files", strconv.Itoa(run.Files)},
		{"unreadable", strconv.Itoa(run.Unreadable)},
		{"volumes queued", strconv.Itoa(len(run.Volumes))},
		{"collisions", strconv.Itoa(run.Collisions)},
	}
	for _, k := range []outcome.Kind{outcome.Success, outcome.CTOnlyFallback, outcome.ModalityUnknown, outcome.ConversionError} {
		summary = append(summary, []string{k.String(), strconv.Itoa(outcome.Count(run.Outcomes, k))})
	}
	fmt.Fprintln(w, renderTable([]string{"Metric", "Count"}, summary, []columnAlignment{alignLeft, alignRight}, fancy))

	if len(run.Outcomes) > 0 {
		rows := make([][]string, 0, len(run.Outcomes))
		for _, o := range run.Outcomes {
			status := o.Kind.String()
			if o.Err != nil {
				status += ": " + o.Err.Error()
			}
			rows = append(rows, []string{o.Subject, o.Timepoint, o.Stage, o.Series, status})
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, renderTable([]string{"Subject", "Timepoint", "Stage", "Series", "Outcome"}, rows, nil, fancy))
	}

	for _, warning := range run.Warnings {
		line := "warning: " + warning
		if fancy {
			line = warnStyle.Render(line)
		}
		fmt.Fprintln(w, line)
	}
}
