package sink

import (
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/oaiharvest/oaiharvest/pkg/errors"
)

// SetSummary is the per-set outcome of a harvest run.
type SetSummary struct {
	Set       string `json:"set"`
	Expected  int    `json:"expected"`
	Harvested int    `json:"harvested"`
	Failed    int    `json:"failed"`
	Mismatch  bool   `json:"mismatch"`
}

// RunSummary aggregates one harvest run. It is a report, not a
// checkpoint: nothing reads it back and an interrupted run restarts its
// partition from the first page.
type RunSummary struct {
	Endpoint   string        `json:"endpoint"`
	Mode       string        `json:"mode"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Sets       []SetSummary  `json:"sets"`
	Total      int           `json:"total_records"`
	Duration   time.Duration `json:"duration_ns"`
}

// WriteSummary writes the run summary as indented JSON.
func WriteSummary(path string, summary *RunSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to marshal run summary")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write run summary")
	}
	return nil
}
