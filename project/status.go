package project

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StatusFileName is the per-project status record file
const StatusFileName = "status.yaml"

// Status is the persisted key-value record for one project. The pipeline
// only ever touches the typed fields it produces; everything else set by
// external collaborators survives in Extra across read-modify-write cycles.
type Status struct {
	UUID                 string   `yaml:"uuid"`
	OriginalFileName     string   `yaml:"original_file_name"`
	AudioFileName        *string  `yaml:"audio_file_name"`
	Spectrogram          *string  `yaml:"spectrogram,omitempty"`
	BPM                  *int     `yaml:"bpm,omitempty"`
	Duration             *float64 `yaml:"duration,omitempty"`
	SpectrogramGenerated bool     `yaml:"spectrogram_generated"`

	// Extra preserves free-form fields owned by external collaborators
	Extra map[string]any `yaml:",inline"`
}

// NewStatus returns the blank record written when an upload is first accepted
func NewStatus(uuid, originalFileName string) *Status {
	return &Status{
		UUID:                 uuid,
		OriginalFileName:     originalFileName,
		AudioFileName:        nil, // Set once the playback artifact is encoded
		SpectrogramGenerated: false,
	}
}

// LoadStatus reads a status record from path
func LoadStatus(path string) (*Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read status file: %w", err)
	}

	var status Status
	if err := yaml.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("parse status file: %w", err)
	}

	return &status, nil
}

// SaveStatus writes a status record to path
func SaveStatus(path string, status *Status) error {
	data, err := yaml.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write status file: %w", err)
	}

	return nil
}

// UpdateStatus performs a read-modify-write cycle on the status record at
// path. Fields the mutation does not touch, including free-form fields owned
// by external collaborators, are preserved verbatim.
func UpdateStatus(path string, mutate func(*Status)) error {
	status, err := LoadStatus(path)
	if err != nil {
		return err
	}

	mutate(status)

	return SaveStatus(path, status)
}
