// Package changefile parses the textual change-file format used to
// schedule Model mutations (spec.md §6):
//
//	t <time> n <count>
//	ADD <AreaType> <id> <minX> <minY> <maxX> <maxY>
//	... <count> lines ...
//
// repeated for every scheduled epoch. The core never reads this format
// itself; it is a convenience parser example Models call from
// Model.LoadChanges.
package changefile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/CxyCH/tapir/internal/diag"
)

// Rectangle is the axis-aligned area an ADD record describes.
type Rectangle struct {
	MinX, MinY, MaxX, MaxY float64
}

// ChangeRecord is one parsed change-file line.
type ChangeRecord struct {
	Time     int64
	Op       string
	AreaType string
	ID       int64
	Rect     Rectangle
}

// Epoch groups every ChangeRecord scheduled for the same time.
type Epoch struct {
	Time    int64
	Records []ChangeRecord
}

// Parse reads a change file from r, returning one Epoch per "t ... n ..."
// header line in the order they appear. A record whose operation is not
// recognized is logged via diag.Logf and skipped, rather than aborting the
// parse, matching the Model-inconsistency recovery policy (spec.md §7).
func Parse(r io.Reader) ([]Epoch, error) {
	scanner := bufio.NewScanner(r)
	var epochs []Epoch

	for scanner.Scan() {
		header := strings.Fields(scanner.Text())
		if len(header) == 0 {
			continue
		}
		if len(header) != 4 || header[0] != "t" || header[2] != "n" {
			return nil, fmt.Errorf("changefile: malformed header %q", scanner.Text())
		}
		time, err := strconv.ParseInt(header[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("changefile: bad time in header %q: %w", scanner.Text(), err)
		}
		count, err := strconv.Atoi(header[3])
		if err != nil {
			return nil, fmt.Errorf("changefile: bad count in header %q: %w", scanner.Text(), err)
		}

		epoch := Epoch{Time: time}
		for i := 0; i < count; i++ {
			if !scanner.Scan() {
				return nil, fmt.Errorf("changefile: expected %d records at time %d, got %d", count, time, i)
			}
			rec, ok, err := parseRecord(time, scanner.Text())
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			epoch.Records = append(epoch.Records, rec)
		}
		epochs = append(epochs, epoch)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("changefile: %w", err)
	}
	return epochs, nil
}

func parseRecord(time int64, line string) (ChangeRecord, bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ChangeRecord{}, false, nil
	}
	op := fields[0]
	if op != "ADD" {
		diag.Logf("changefile: unrecognized operation %q, skipping", op)
		return ChangeRecord{}, false, nil
	}
	if len(fields) != 7 {
		return ChangeRecord{}, false, fmt.Errorf("changefile: malformed ADD record %q", line)
	}
	id, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return ChangeRecord{}, false, fmt.Errorf("changefile: bad id in %q: %w", line, err)
	}
	coords := make([]float64, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(fields[3+i], 64)
		if err != nil {
			return ChangeRecord{}, false, fmt.Errorf("changefile: bad rectangle coordinate in %q: %w", line, err)
		}
		coords[i] = v
	}
	return ChangeRecord{
		Time:     time,
		Op:       op,
		AreaType: fields[1],
		ID:       id,
		Rect:     Rectangle{MinX: coords[0], MinY: coords[1], MaxX: coords[2], MaxY: coords[3]},
	}, true, nil
}

// ParseFile opens path and parses it as a change file.
func ParseFile(path string) ([]Epoch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("changefile: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Times returns the epoch times in the order they appear, for use as the
// return value of Model.LoadChanges.
func Times(epochs []Epoch) []int64 {
	out := make([]int64, len(epochs))
	for i, e := range epochs {
		out[i] = e.Time
	}
	return out
}

// ByTime indexes epochs by their time, for Model.Update lookups.
func ByTime(epochs []Epoch) map[int64]Epoch {
	out := make(map[int64]Epoch, len(epochs))
	for _, e := range epochs {
		out[e.Time] = e
	}
	return out
}
