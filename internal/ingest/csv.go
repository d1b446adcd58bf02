package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"sun_harvester/internal/model"
)

var csvDateColumns = []string{"year", "month", "day", "hour", "min", "sec"}

// CSVParser parses trace tables written by trace.CSVWriter.
//
// Expected format:
//
//	year;month;day;hour;min;sec;HarvestedPower;
//	2015;1;1;9;0;0;0.0004012;
type CSVParser struct {
	// Owner prefixes the series ID, e.g. a harvester ID.
	Owner string
}

func NewCSVParser(owner string) *CSVParser {
	return &CSVParser{Owner: owner}
}

func (p *CSVParser) Parse(r io.Reader) ([]model.Reading, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	name, err := validateTraceHeader(header)
	if err != nil {
		return nil, err
	}

	sensor := p.sensor(name)
	var readings []model.Reading
	lineNum := 1

	for {
		lineNum++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", lineNum, err)
		}

		reading, err := parseTraceRecord(record, lineNum)
		if err != nil {
			continue
		}
		reading.SensorID = sensor.ID
		reading.Type = sensor.Type
		reading.Unit = sensor.Unit
		readings = append(readings, reading)
	}

	return readings, nil
}

func (p *CSVParser) sensor(name string) model.Sensor {
	if tt, ok := model.SourceNameToTraceType[name]; ok {
		return model.SensorFor(p.Owner, tt)
	}
	id := name
	if p.Owner != "" {
		id = p.Owner + "/" + name
	}
	return model.Sensor{ID: id, Name: name}
}

func validateTraceHeader(header []string) (string, error) {
	if len(header) < 7 {
		return "", fmt.Errorf("expected at least 7 columns, got %d", len(header))
	}
	for i, col := range csvDateColumns {
		if strings.TrimSpace(header[i]) != col {
			return "", fmt.Errorf("expected column %d to be %q, got %q", i, col, header[i])
		}
	}
	name := strings.TrimSpace(header[6])
	if name == "" {
		return "", fmt.Errorf("value column has no name")
	}
	return name, nil
}

func parseTraceRecord(record []string, lineNum int) (model.Reading, error) {
	if len(record) < 7 {
		return model.Reading{}, fmt.Errorf("line %d: expected 7 fields, got %d", lineNum, len(record))
	}

	var parts [6]int
	for i := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(record[i]))
		if err != nil {
			return model.Reading{}, fmt.Errorf("line %d: parsing %s: %w", lineNum, csvDateColumns[i], err)
		}
		parts[i] = n
	}
	d := model.DateTime{Year: parts[0], Month: parts[1], Day: parts[2], Hour: parts[3], Minute: parts[4], Second: parts[5]}
	if d.Normalize() != d {
		return model.Reading{}, fmt.Errorf("line %d: %v is not a calendar date", lineNum, d)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(record[6]), 64)
	if err != nil {
		return model.Reading{}, fmt.Errorf("line %d: parsing value %q: %w", lineNum, record[6], err)
	}

	return model.Reading{Timestamp: d.Time(), Value: value}, nil
}
