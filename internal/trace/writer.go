package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"sun_harvester/internal/model"
)

// Clock reports the current simulation time.
type Clock interface {
	Now() time.Duration
}

// DateFunc returns the simulated calendar date a write should be stamped with.
type DateFunc func() model.DateTime

// ASCIIWriter writes one line per traced write:
//
//	+ <simulation seconds> <context> <value> [<unit>]
type ASCIIWriter struct {
	mu    sync.Mutex
	w     io.Writer
	clock Clock
	err   error
}

func NewASCIIWriter(w io.Writer, clock Clock) *ASCIIWriter {
	return &ASCIIWriter{w: w, clock: clock}
}

// Sink returns a sink labelling its lines with context and unit.
func (a *ASCIIWriter) Sink(context, unit string) Sink {
	return func(_, current float64) {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.err != nil {
			return
		}
		_, a.err = fmt.Fprintf(a.w, "+ %s %s %s [%s]\n",
			strconv.FormatFloat(a.clock.Now().Seconds(), 'g', -1, 64),
			context,
			strconv.FormatFloat(current, 'g', -1, 64),
			unit)
	}
}

// Err returns the first write error, if any.
func (a *ASCIIWriter) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// CSVWriter writes a semicolon separated table stamped with the simulated date:
//
//	year;month;day;hour;min;sec;<name>;
type CSVWriter struct {
	mu   sync.Mutex
	w    *csv.Writer
	date DateFunc
	err  error
}

// NewCSVWriter writes the header row for the value column name.
func NewCSVWriter(w io.Writer, name string, date DateFunc) (*CSVWriter, error) {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write([]string{"year", "month", "day", "hour", "min", "sec", name, ""}); err != nil {
		return nil, fmt.Errorf("writing CSV header: %w", err)
	}
	return &CSVWriter{w: cw, date: date}, nil
}

// Sink returns the sink writing one row per traced write.
func (c *CSVWriter) Sink() Sink {
	return func(_, current float64) {
		d := c.date()
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.err != nil {
			return
		}
		c.err = c.w.Write([]string{
			strconv.Itoa(d.Year),
			strconv.Itoa(d.Month),
			strconv.Itoa(d.Day),
			strconv.Itoa(d.Hour),
			strconv.Itoa(d.Minute),
			strconv.Itoa(d.Second),
			strconv.FormatFloat(current, 'g', -1, 64),
			"",
		})
	}
}

// Flush writes buffered rows and returns the first error seen.
func (c *CSVWriter) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	if c.err != nil {
		return c.err
	}
	return c.w.Error()
}
