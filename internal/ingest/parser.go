package ingest

import (
	"io"

	"sun_harvester/internal/model"
)

// Parser reads trace output back into readings.
type Parser interface {
	Parse(r io.Reader) ([]model.Reading, error)
}
