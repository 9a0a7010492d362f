package ingester

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/navid-fn/tickarchive/internal/models"
	"github.com/navid-fn/tickarchive/internal/progress"
	"github.com/navid-fn/tickarchive/internal/validator"
)

// ChunkSize is the number of lines between two progress reports.
const ChunkSize = 1000

const maxLineSize = 1 << 20

// Batch is the outcome of decoding one day.
type Batch struct {
	Ticks    []models.Tick
	Lines    int
	Rejected int
	ByKind   map[validator.Kind]int
}

// positioner is implemented by streams that know how far through the
// underlying archive they are.
type positioner interface {
	Position() (read, total int64)
}

// Decoder turns a decompressed archive into validated ticks.
type Decoder struct {
	validator *validator.Validator
	reporter  progress.Reporter
	logger    *slog.Logger
}

// NewDecoder creates a decoder. reporter receives one snapshot per chunk and
// a final one; it may be nil.
func NewDecoder(v *validator.Validator, reporter progress.Reporter, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{validator: v, reporter: reporter, logger: logger}
}

// Decode reads r line by line. The first line is validated like any other
// and then remembered as the header so later copies of it are rejected as
// header rows. Rejected rows are counted, never returned; lines longer than
// maxLineSize are skipped as oversized rows. Only a read error fails the
// batch.
func (d *Decoder) Decode(ctx context.Context, r io.Reader, day time.Time) (Batch, error) {
	batch := Batch{ByKind: make(map[validator.Kind]int)}

	pos, hasPos := r.(positioner)
	var total int64
	if hasPos {
		_, total = pos.Position()
	}
	tracker := progress.NewTracker(day.Format(time.DateOnly), total, d.reporter)

	report := func(chunk int) {
		action := fmt.Sprintf("chunk %d: %d/%d rows skipped", chunk, batch.Rejected, batch.Lines)
		if hasPos {
			read, _ := pos.Position()
			tracker.Update(read, action)
		} else {
			tracker.Update(int64(batch.Lines), action)
		}
	}

	debug := d.logger.Enabled(ctx, slog.LevelDebug)
	br := bufio.NewReaderSize(r, 64*1024)

	var header string
	chunk := 0
	for {
		raw, oversized, err := readLine(br)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return batch, fmt.Errorf("read line %d: %w", batch.Lines+1, err)
		}
		line := strings.TrimSuffix(raw, "\r")
		batch.Lines++

		var tick models.Tick
		if oversized {
			err = &validator.Rejection{Kind: validator.OversizedRow, Value: strconv.Itoa(maxLineSize)}
		} else {
			tick, err = d.validator.Validate(line, header, day)
			if batch.Lines == 1 {
				header = line
			}
		}
		if err != nil {
			batch.Rejected++
			var rej *validator.Rejection
			if errors.As(err, &rej) {
				batch.ByKind[rej.Kind]++
			}
			if debug {
				d.logger.Debug("Row rejected", "day", day.Format(time.DateOnly), "line", batch.Lines, "reason", err)
			}
		} else {
			batch.Ticks = append(batch.Ticks, tick)
		}

		if batch.Lines%ChunkSize == 0 {
			chunk++
			report(chunk)
			if err := ctx.Err(); err != nil {
				return batch, err
			}
		}
	}

	report(chunk + 1)
	tracker.Stop()
	return batch, nil
}

// readLine returns the next line without its newline. A line longer than
// maxLineSize is consumed up to its newline but not kept, and oversized is
// set. A final line without a newline is returned as usual; io.EOF is only
// returned once nothing is left.
func readLine(br *bufio.Reader) (string, bool, error) {
	var buf []byte
	read, oversized := false, false
	for {
		part, err := br.ReadSlice('\n')
		read = read || len(part) > 0
		if !oversized {
			if len(buf)+len(part) > maxLineSize+1 {
				oversized = true
				buf = nil
			} else {
				buf = append(buf, part...)
			}
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && read:
			return string(buf), oversized, nil
		case err != nil:
			return "", false, err
		}
		return strings.TrimSuffix(string(buf), "\n"), oversized, nil
	}
}

// Accepted returns the number of ticks that passed validation.
func (b Batch) Accepted() int { return len(b.Ticks) }

// RejectedByReason returns the per-kind counts keyed by their label.
func (b Batch) RejectedByReason() map[string]int {
	out := make(map[string]int, len(b.ByKind))
	for k, n := range b.ByKind {
		out[k.String()] = n
	}
	return out
}
