package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"sun_harvester/internal/model"
)

// ASCIIParser parses the line trace written by trace.ASCIIWriter.
//
// Expected format:
//
//	+ 16 3f2a.../HarvestedPower 0.0004012 [W]
//
// Lines not starting with "+" are skipped.
type ASCIIParser struct {
	// Start is the simulated date at simulation time zero. Timestamps are
	// Start plus the simulation seconds of each line.
	Start model.DateTime
}

func NewASCIIParser(start model.DateTime) *ASCIIParser {
	return &ASCIIParser{Start: start}
}

func (p *ASCIIParser) Parse(r io.Reader) ([]model.Reading, error) {
	sc := bufio.NewScanner(r)
	base := p.Start.Time()

	var readings []model.Reading
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "+ ") {
			continue
		}
		reading, err := parseASCIILine(line, lineNum)
		if err != nil {
			continue
		}
		reading.Timestamp = base.Add(reading.SimTime)
		readings = append(readings, reading)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading trace line %d: %w", lineNum+1, err)
	}
	return readings, nil
}

func parseASCIILine(line string, lineNum int) (model.Reading, error) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return model.Reading{}, fmt.Errorf("line %d: expected at least 4 fields, got %d", lineNum, len(fields))
	}

	secs, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return model.Reading{}, fmt.Errorf("line %d: parsing time %q: %w", lineNum, fields[1], err)
	}
	value, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return model.Reading{}, fmt.Errorf("line %d: parsing value %q: %w", lineNum, fields[3], err)
	}

	reading := model.Reading{
		SimTime:  time.Duration(secs * float64(time.Second)),
		SensorID: fields[2],
		Value:    value,
	}
	if len(fields) > 4 {
		reading.Unit = strings.Trim(fields[4], "[]")
	}
	if i := strings.LastIndexByte(reading.SensorID, '/'); i >= 0 {
		reading.Type = model.SourceNameToTraceType[reading.SensorID[i+1:]]
	}
	return reading, nil
}
