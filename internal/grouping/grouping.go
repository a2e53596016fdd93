// Package grouping buckets an unsorted pile of DICOM files into series,
// grouped by subject.
package grouping

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/mrsinham/rtcurate/internal/dicom"
)

// NoneLabel replaces a key part whose tag is missing or empty.
const NoneLabel = "NONE"

// RecordReader parses one file's header.
type RecordReader interface {
	Read(ctx context.Context, path string) (*dicom.Record, error)
}

// Bucket is one series of one subject. All records share the bucket key,
// which embeds their SeriesInstanceUID and StudyInstanceUID.
type Bucket struct {
	Key       string
	Subject   string
	Timepoint string
	// Records are ordered by path.
	Records []*dicom.Record
}

// Subject holds the buckets of one subject, ordered by key.
type Subject struct {
	Name    string
	Buckets []Bucket
}

// Grouping is the result of one traversal. It is built once and only read
// afterwards.
type Grouping struct {
	Subjects []Subject
	// Files is the number of regular files visited.
	Files int
	// Unreadable lists files whose header could not be parsed.
	Unreadable []string
}

// Buckets returns every bucket, subjects in order.
func (g Grouping) Buckets() []Bucket {
	var out []Bucket
	for _, s := range g.Subjects {
		out = append(out, s.Buckets...)
	}
	return out
}

// Options tunes Group.
type Options struct {
	// Workers bounds concurrent header parsing; zero means runtime.NumCPU().
	Workers int
	Logger  *slog.Logger
}

var (
	upper    = cases.Upper(language.Und)
	keepOnly = runes.Remove(runes.Predicate(func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}))
)

// normalize keeps only ASCII letters and digits of s.
func normalize(s string) string {
	out, _, err := transform.String(keepOnly, s)
	if err != nil || out == "" {
		return NoneLabel
	}
	return out
}

// Key returns the grouping key of rec: the upper-cased series description
// (falling back to the modality), the series UID and the study UID, each
// reduced to ASCII alphanumerics and joined with "-".
func Key(rec *dicom.Record) string {
	desc, ok := rec.SeriesDescription.Get()
	if !ok {
		desc, ok = rec.Modality.Get()
	}
	if !ok {
		desc = NoneLabel
	}
	return strings.Join([]string{
		normalize(upper.String(desc)),
		normalize(rec.SeriesInstanceUID.Or(NoneLabel)),
		normalize(rec.StudyInstanceUID.Or(NoneLabel)),
	}, "-")
}

// SafeName makes an identity value usable as a single path element.
func SafeName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", `\`, "_", "\x00", "").Replace(s)
	if s == "" || s == "." || s == ".." {
		return dicom.CorruptedLabel
	}
	return s
}

type readResult struct {
	index int
	rec   *dicom.Record
	err   error
}

// Group walks root, parses every regular file with reader and buckets the
// readable ones. Unreadable files are logged and listed, never fatal.
func Group(ctx context.Context, root string, reader RecordReader, opts Options) (Grouping, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	paths, err := collectPaths(root)
	if err != nil {
		return Grouping{}, err
	}

	records := make([]*dicom.Record, len(paths))
	failures := make([]error, len(paths))

	numWorkers := opts.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(paths) {
		numWorkers = len(paths)
	}

	taskChan := make(chan int, len(paths))
	resultChan := make(chan readResult, len(paths))

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range taskChan {
				if err := ctx.Err(); err != nil {
					resultChan <- readResult{index: idx, err: err}
					continue
				}
				rec, err := reader.Read(ctx, paths[idx])
				resultChan <- readResult{index: idx, rec: rec, err: err}
			}
		}()
	}

	for i := range paths {
		taskChan <- i
	}
	close(taskChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for res := range resultChan {
		records[res.index] = res.rec
		failures[res.index] = res.err
	}

	if err := ctx.Err(); err != nil {
		return Grouping{}, err
	}

	g := Grouping{Files: len(paths)}
	for i, path := range paths {
		if failures[i] != nil || records[i] == nil {
			g.Unreadable = append(g.Unreadable, path)
			logger.Warn("skipping unreadable file", "path", path, "error", failures[i])
		}
	}
	g.Subjects = bucketize(records)

	logger.Info("grouped input",
		"files", g.Files,
		"unreadable", len(g.Unreadable),
		"subjects", len(g.Subjects),
		"series", len(g.Buckets()),
	)
	return g, nil
}

func collectPaths(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// unreadable subdirectories are skipped like unreadable files
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("input directory %s: %w", root, err)
		}
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return paths, nil
}

// bucketize groups records (nil entries skipped) by key, then files each
// bucket under the subject and timepoint of its first record. Input order is
// path order, which is preserved inside each bucket.
func bucketize(records []*dicom.Record) []Subject {
	var order []string
	byKey := map[string]*Bucket{}
	for _, rec := range records {
		if rec == nil {
			continue
		}
		key := Key(rec)
		b, ok := byKey[key]
		if !ok {
			b = &Bucket{
				Key:       key,
				Subject:   SafeName(rec.Identity.Subject),
				Timepoint: SafeName(rec.Identity.Timepoint),
			}
			byKey[key] = b
			order = append(order, key)
		}
		b.Records = append(b.Records, rec)
	}

	bySubject := map[string]*Subject{}
	for _, key := range order {
		b := byKey[key]
		s, ok := bySubject[b.Subject]
		if !ok {
			s = &Subject{Name: b.Subject}
			bySubject[b.Subject] = s
		}
		s.Buckets = append(s.Buckets, *b)
	}

	subjects := make([]Subject, 0, len(bySubject))
	for _, s := range bySubject {
		sort.Slice(s.Buckets, func(i, j int) bool { return s.Buckets[i].Key < s.Buckets[j].Key })
		subjects = append(subjects, *s)
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Name < subjects[j].Name })
	return subjects
}

