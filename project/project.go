// Package project manages content-addressed project identities and their
// on-disk storage. Every project owns one directory named by the SHA-256 of
// the original upload's bytes; all intermediate and final artifacts live in
// that directory and nothing in the conversion core writes outside it.
package project

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/audioscribe/audioscribe/logging"
)

// IdentifierFromFile derives the content-addressed project identifier from a
// file's bytes. Identical bytes always produce the same identifier, which is
// what makes duplicate uploads resolve to the same project.
func IdentifierFromFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Layout maps project identifiers onto the media root directory
type Layout struct {
	Root string // Media root; one subdirectory per project
}

// Dir returns the project's exclusive directory
func (l Layout) Dir(id string) string {
	return filepath.Join(l.Root, id)
}

// Path returns the path of a named artifact inside the project directory
func (l Layout) Path(id, name string) string {
	return filepath.Join(l.Dir(id), name)
}

// StatusPath returns the path of the project's status record
func (l Layout) StatusPath(id string) string {
	return l.Path(id, StatusFileName)
}

// Exists reports whether the project directory already exists
func (l Layout) Exists(id string) bool {
	info, err := os.Stat(l.Dir(id))
	return err == nil && info.IsDir()
}

// Ingest accepts an uploaded file: it derives the content identifier, creates
// the project directory, moves the upload into it and writes a blank status
// record. If a project with the same content already exists the upload is
// discarded and created is false - byte-identical content must not be
// reprocessed.
func (l Layout) Ingest(uploadPath string) (id string, created bool, err error) {
	logger := logging.WithFields(logging.Fields{
		"component": "project",
		"function":  "Ingest",
		"upload":    uploadPath,
	})

	id, err = IdentifierFromFile(uploadPath)
	if err != nil {
		return "", false, err
	}

	if l.Exists(id) {
		logger.Debug("Duplicate upload resolves to existing project", logging.Fields{
			"project_id": id,
		})
		return id, false, nil
	}

	if err := os.MkdirAll(l.Dir(id), 0o755); err != nil {
		return "", false, fmt.Errorf("create project directory: %w", err)
	}

	fileName := filepath.Base(uploadPath)
	dst := l.Path(id, fileName)
	if err := moveFile(uploadPath, dst); err != nil {
		return "", false, fmt.Errorf("move upload into project directory: %w", err)
	}

	status := NewStatus(id, fileName)
	if err := SaveStatus(l.StatusPath(id), status); err != nil {
		return "", false, err
	}

	logger.Info("Project created", logging.Fields{
		"project_id": id,
		"file_name":  fileName,
	})

	return id, true, nil
}

// moveFile renames src to dst, falling back to copy+remove when the rename
// crosses filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Remove(src)
}
