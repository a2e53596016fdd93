package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mrsinham/rtcurate/internal/placement"
	"github.com/mrsinham/rtcurate/internal/rtgraph"
)

// leftover is a sorted entry that is not part of an RT chain.
type leftover struct {
	subject   string
	timepoint string
	path      string
	dir       bool
}

var rtFolders = map[string]bool{
	rtgraph.PlanDir:   true,
	rtgraph.StructDir: true,
	rtgraph.DoseDir:   true,
	rtgraph.CTDir:     true,
}

// scanSorted splits <sorted>/<subject>/<timepoint> into the timepoints that
// need RT resolution and the entries that are merged as they are.
func scanSorted(sorted string) ([]rtgraph.Timepoint, []leftover, error) {
	subjects, err := readDirs(sorted)
	if err != nil {
		return nil, nil, err
	}
	var (
		timepoints []rtgraph.Timepoint
		leftovers  []leftover
	)
	for _, subject := range subjects {
		dates, err := readDirs(filepath.Join(sorted, subject))
		if err != nil {
			return nil, nil, err
		}
		for _, date := range dates {
			dir := filepath.Join(sorted, subject, date)
			ownsRT := rtgraph.OwnsRT(dir)
			if ownsRT {
				timepoints = append(timepoints, rtgraph.Timepoint{Subject: subject, Date: date, Dir: dir})
			}
			entries, err := os.ReadDir(dir)
			if err != nil {
				return nil, nil, fmt.Errorf("list %s: %w", dir, err)
			}
			for _, e := range entries {
				if ownsRT && e.IsDir() && rtFolders[e.Name()] {
					continue
				}
				leftovers = append(leftovers, leftover{
					subject:   subject,
					timepoint: date,
					path:      filepath.Join(dir, e.Name()),
					dir:       e.IsDir(),
				})
			}
		}
	}
	return timepoints, leftovers, nil
}

// merge copies every leftover into <output>/<subject>/<timepoint>/.
func merge(ctx context.Context, out *placement.Placer, leftovers []leftover) error {
	for _, l := range leftovers {
		if err := ctx.Err(); err != nil {
			return err
		}
		dir, err := out.Dir(l.subject, l.timepoint, "")
		if err != nil {
			return err
		}
		if l.dir {
			_, err = out.PlaceTree(l.path, dir, "")
		} else {
			_, err = out.PlaceFile(l.path, dir, "")
		}
		if err != nil {
			return fmt.Errorf("merge %s: %w", l.path, err)
		}
	}
	return nil
}

// readDirs lists the sub-directory names of dir. A missing dir is empty.
func readDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
