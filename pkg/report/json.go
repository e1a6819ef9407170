package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/teslashibe/go-camlat/pkg/harness"
)

// File is the JSON document written by WriteJSON.
type File struct {
	RunID     string            `json:"run_id"`
	Suite     string            `json:"suite"`
	Backend   string            `json:"backend"`
	Generated time.Time         `json:"generated"`
	Results   []*harness.Result `json:"results"`
}

// NewFile collects results into a File. The run id and backend come from
// the first result.
func NewFile(suite string, results []*harness.Result) File {
	f := File{
		Suite:     suite,
		Generated: time.Now().UTC(),
		Results:   results,
	}
	if len(results) > 0 {
		f.RunID = results[0].RunID
		f.Backend = results[0].Backend
	}
	return f
}

// WriteJSON writes results to path, replacing any existing file.
func WriteJSON(path, suite string, results []*harness.Result) error {
	data, err := json.MarshalIndent(NewFile(suite, results), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadJSON loads a results file written by WriteJSON.
func ReadJSON(path string) (File, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}
