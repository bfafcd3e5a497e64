// Package status writes the process status file read by the control
// panel.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type State string

const (
	Running State = "running"
	Stopped State = "stopped"
)

// File is the on-disk status document. PID is null once stopped.
type File struct {
	Status    State     `json:"status"`
	PID       *int      `json:"pid"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Write replaces the status file atomically.
func Write(path string, state State, pid int) error {
	doc := File{Status: state, UpdatedAt: time.Now().UTC()}
	if state == Running {
		doc.PID = &pid
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("status dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return os.Rename(tmp, path)
}

func Read(path string) (File, error) {
	var doc File
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	err = json.Unmarshal(data, &doc)
	return doc, err
}
