package kafka

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	EventVersion = 1
	OpCompleted  = "completed"
)

// Event announces a finished run.
type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	RunID   string    `json:"run_id"`
	Output  string    `json:"output,omitempty"`
	CRS     string    `json:"crs"`
	Water   int       `json:"water"`
	Targets int       `json:"targets"`
	Matched int       `json:"matched"`
	Cached  bool      `json:"cached"`
	TS      time.Time `json:"ts"`
}

func (e Event) Validate() error {
	if e.Version != EventVersion {
		return fmt.Errorf("version must be %d", EventVersion)
	}
	if e.Op != OpCompleted {
		return fmt.Errorf("op must be %s", OpCompleted)
	}
	if strings.TrimSpace(e.RunID) == "" {
		return errors.New("run_id is required")
	}
	if e.TS.IsZero() {
		return errors.New("ts is required")
	}
	if e.Water < 0 || e.Targets < 0 || e.Matched < 0 {
		return errors.New("counts must be non-negative")
	}
	return nil
}
