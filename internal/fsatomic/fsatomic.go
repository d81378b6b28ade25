// Package fsatomic provides crash-safe file writes and monotonic filenames
// for the IPC directory fabric. Every write a watcher may observe goes
// through WriteFile: write to "<final>.tmp", fsync, then rename onto
// "<final>" — a reader never observes a partially written file, even if the
// process dies between write and rename.
package fsatomic

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriteFile writes data to path atomically: temp file in the same
// directory, fsync, then rename. The temp file uses the final name plus
// a ".tmp" suffix so watchers (which MUST ignore ".tmp" suffixes) never
// see it.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fsatomic: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("fsatomic: create temp: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsatomic: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsatomic: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("fsatomic: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("fsatomic: rename to %s: %w", path, err)
	}
	return nil
}

// WriteJSON marshals v and writes it atomically to path.
func WriteJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("fsatomic: marshal: %w", err)
	}
	return WriteFile(path, data)
}

// ReadJSON reads and unmarshals the file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// IsTempName reports whether name (a base filename) is a temp/in-flight
// write artifact that watchers must ignore.
func IsTempName(name string) bool {
	return filepath.Ext(name) == ".tmp"
}

// MonotonicName returns a filename of the form "<ms-epoch>-<6-hex>" (no
// extension) such that lexicographic sort order equals creation order
// across processes writing into the same directory. The hex suffix
// disambiguates names minted within the same millisecond.
func MonotonicName() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), randHex(3))
}

// MonotonicJSONName is MonotonicName with a ".json" extension, the form
// used for ordered IPC event-stream files.
func MonotonicJSONName() string {
	return MonotonicName() + ".json"
}

func randHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is effectively unrecoverable on any real
		// platform; fall back to the clock's nanosecond jitter so callers
		// never have to handle an error from a name generator.
		return hex.EncodeToString([]byte(fmt.Sprintf("%06d", time.Now().Nanosecond()%1_000_000))[:n*2])
	}
	return hex.EncodeToString(b)
}
