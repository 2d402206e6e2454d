// Package artifacts records what a packaging run produced. Each run rewrites
// a single manifest file next to the executables so later invocations and the
// list subcommand can tell what is current.
package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ManifestName is the file name of the run manifest inside the build
// directory.
const ManifestName = "winpack-manifest.json"

// Produced names one executable to record.
type Produced struct {
	Variant string
	Path    string
}

// Entry is one recorded executable.
type Entry struct {
	ID      string `json:"id"`
	Variant string `json:"variant"`
	Path    string `json:"path"`
	SHA256  string `json:"sha256"`
	Size    int64  `json:"size"`
}

// Manifest is the on-disk record of one packaging run. Only the most recent
// run is kept.
type Manifest struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
}

// Writer persists run manifests at a fixed path.
type Writer struct {
	Path string
}

// Write hashes the produced executables and replaces the manifest on disk.
func (w *Writer) Write(produced []Produced) (Manifest, error) {
	manifest := Manifest{
		RunID:     uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Entries:   make([]Entry, 0, len(produced)),
	}

	for _, item := range produced {
		entry, err := describe(item)
		if err != nil {
			return Manifest{}, err
		}
		manifest.Entries = append(manifest.Entries, entry)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return Manifest{}, fmt.Errorf("encode manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(w.Path), 0o755); err != nil {
		return Manifest{}, fmt.Errorf("create manifest directory: %w", err)
	}
	if err := os.WriteFile(w.Path, data, 0o644); err != nil {
		return Manifest{}, fmt.Errorf("write manifest: %w", err)
	}
	return manifest, nil
}

// Read loads the manifest at path.
func Read(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return manifest, nil
}

func describe(item Produced) (Entry, error) {
	file, err := os.Open(item.Path)
	if err != nil {
		return Entry{}, fmt.Errorf("open artifact %s: %w", item.Path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Entry{}, fmt.Errorf("stat artifact %s: %w", item.Path, err)
	}

	digest := sha256.New()
	if _, err := io.Copy(digest, file); err != nil {
		return Entry{}, fmt.Errorf("hash artifact %s: %w", item.Path, err)
	}

	return Entry{
		ID:      uuid.New().String(),
		Variant: item.Variant,
		Path:    item.Path,
		SHA256:  hex.EncodeToString(digest.Sum(nil)),
		Size:    info.Size(),
	}, nil
}

// Clean removes everything inside dir, leaving the directory itself in
// place. A missing directory is not an error.
func Clean(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read build directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// RemoveIfPresent deletes the named file, tolerating its absence.
func RemoveIfPresent(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
