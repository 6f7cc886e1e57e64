package project

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStatusRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), StatusFileName)

	if err := SaveStatus(path, NewStatus("deadbeef", "mix.flac")); err != nil {
		t.Fatalf("save: %v", err)
	}

	status, err := LoadStatus(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if status.UUID != "deadbeef" || status.OriginalFileName != "mix.flac" {
		t.Errorf("got %q/%q, want deadbeef/mix.flac", status.UUID, status.OriginalFileName)
	}
	if status.AudioFileName != nil || status.SpectrogramGenerated {
		t.Error("blank record carries non-blank conversion fields")
	}
}

func TestUpdateStatusSetsTypedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), StatusFileName)
	if err := SaveStatus(path, NewStatus("deadbeef", "mix.flac")); err != nil {
		t.Fatalf("save: %v", err)
	}

	name := "mix_cbr.mp3"
	if err := UpdateStatus(path, func(s *Status) {
		s.AudioFileName = &name
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	bpm := 128
	duration := 182.5
	image := "mix.png"
	if err := UpdateStatus(path, func(s *Status) {
		s.Spectrogram = &image
		s.BPM = &bpm
		s.Duration = &duration
		s.SpectrogramGenerated = true
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	status, err := LoadStatus(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if status.AudioFileName == nil || *status.AudioFileName != name {
		t.Errorf("audio_file_name = %v, want %q", status.AudioFileName, name)
	}
	if status.BPM == nil || *status.BPM != 128 {
		t.Errorf("bpm = %v, want 128", status.BPM)
	}
	if status.Duration == nil || *status.Duration != 182.5 {
		t.Errorf("duration = %v, want 182.5", status.Duration)
	}
	if !status.SpectrogramGenerated {
		t.Error("spectrogram_generated not set")
	}
}

func TestUpdateStatusPreservesForeignFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), StatusFileName)

	// A record written by an external collaborator, with fields this module
	// knows nothing about
	record := "" +
		"uuid: deadbeef\n" +
		"original_file_name: mix.flac\n" +
		"audio_file_name: null\n" +
		"spectrogram_generated: false\n" +
		"title: Late Night Mix\n" +
		"tags:\n" +
		"    - ambient\n" +
		"    - downtempo\n" +
		"play_count: 7\n"
	if err := os.WriteFile(path, []byte(record), 0o644); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	name := "mix_cbr.mp3"
	if err := UpdateStatus(path, func(s *Status) {
		s.AudioFileName = &name
		s.SpectrogramGenerated = true
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	status, err := LoadStatus(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// The foreign fields survived the read-modify-write cycle intact
	if got := status.Extra["title"]; got != "Late Night Mix" {
		t.Errorf("title = %v, want Late Night Mix", got)
	}
	if got := status.Extra["play_count"]; got != 7 {
		t.Errorf("play_count = %v (%T), want 7", got, got)
	}
	tags, ok := status.Extra["tags"].([]any)
	if !ok || len(tags) != 2 || tags[0] != "ambient" {
		t.Errorf("tags = %v, want [ambient downtempo]", status.Extra["tags"])
	}

	if status.AudioFileName == nil || *status.AudioFileName != name {
		t.Errorf("audio_file_name = %v, want %q", status.AudioFileName, name)
	}
	if !status.SpectrogramGenerated {
		t.Error("spectrogram_generated not set")
	}
}

func TestLoadStatusErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadStatus(filepath.Join(dir, "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte(":\n  - not valid yaml: ["), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadStatus(bad); err == nil {
		t.Error("expected error for malformed yaml")
	}
}
