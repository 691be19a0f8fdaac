// Package persistence writes batch reports to disk, with pluggable
// serialization and destination seams.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andrej220/fleetup/internal/fleet"
)

// Report is the durable summary of one finished batch.
type Report struct {
	JobID      string                  `json:"job_id"`
	Operation  fleet.Operation         `json:"operation"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Results    []fleet.OperationResult `json:"results"`
}

// Summary tallies results by status.
func (r Report) Summary() (ok, failed int) {
	for _, res := range r.Results {
		if res.Status == fleet.StatusOK {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

type Options struct {
	Overwrite bool
	Prefix    string
	Indent    string
}

type Serializer interface {
	Marshal(data any) ([]byte, error)
}

type Writer interface {
	Write(filename string, data []byte) error
}

type JSONSerializer struct {
	Prefix, Indent string
}

func (s JSONSerializer) Marshal(data any) ([]byte, error) {
	return json.MarshalIndent(data, s.Prefix, s.Indent)
}

type FileWriter struct {
	Overwrite bool
}

func (w FileWriter) Write(filename string, data []byte) error {
	if filename == "" {
		return os.ErrInvalid
	}
	if _, err := os.Stat(filename); !os.IsNotExist(err) && !w.Overwrite {
		return os.ErrExist
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// WriteReport persists a batch report using the provided seams. The opts
// parameter tunes indentation and overwrite behavior.
func WriteReport(rep Report, filename string, serializer Serializer, writer Writer, opts ...Options) error {
	opt := Options{Overwrite: true, Indent: "    "}
	if len(opts) > 0 {
		opt = opts[0]
	}
	if serializer == nil {
		serializer = JSONSerializer{Prefix: opt.Prefix, Indent: opt.Indent}
	}
	if writer == nil {
		writer = FileWriter{Overwrite: opt.Overwrite}
	}

	bytes, err := serializer.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}
	if err := writer.Write(filename, bytes); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
