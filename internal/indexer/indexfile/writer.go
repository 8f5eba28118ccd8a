// Package indexfile persists one document's index.Store as a single file.
//
// Layout:
//
//	header  (16 bytes) magic uint32 | layout uint32 | payload length uint64
//	payload (JSON)     the full index.Store
//	footer  (4 bytes)  crc32 (IEEE) of the payload
//
// All integers are little-endian. The payload is self-describing; the
// framing only guards against truncated or foreign files.
package indexfile

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/indexer/index"
)

const (
	MagicBytes    uint32 = 0x44524958
	LayoutVersion uint32 = 1
	HeaderSize    int    = 16
	FooterSize    int    = 4
	Extension            = ".drix"
)

// FileName derives the deterministic file name for a document key.
func FileName(documentKey string) string {
	sum := sha256.Sum256([]byte(documentKey))
	return hex.EncodeToString(sum[:16]) + Extension
}

// Writer serialises stores into a data directory.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes index files into dataDir.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Dir returns the data directory.
func (w *Writer) Dir() string {
	return w.dataDir
}

// Path returns where the index file for documentKey lives.
func (w *Writer) Path(documentKey string) string {
	return filepath.Join(w.dataDir, FileName(documentKey))
}

// Write atomically replaces the index file for store.DocumentKey. It writes
// to a .tmp file first and renames on success.
func (w *Writer) Write(store *index.Store) (string, error) {
	if store == nil || store.DocumentKey == "" {
		return "", fmt.Errorf("cannot write index without a document key")
	}
	payload, err := json.Marshal(store)
	if err != nil {
		return "", fmt.Errorf("marshaling index %s: %w", store.DocumentKey, err)
	}
	if err := os.MkdirAll(w.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating index directory: %w", err)
	}

	finalPath := w.Path(store.DocumentKey)
	tmpPath := finalPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp index file: %w", err)
	}
	defer os.Remove(tmpPath)
	defer f.Close()

	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], LayoutVersion)
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(payload)))
	if _, err := f.Write(header); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		return "", fmt.Errorf("writing payload: %w", err)
	}
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer, crc32.ChecksumIEEE(payload))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing index file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing index file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming index file: %w", err)
	}
	return finalPath, nil
}

// Remove deletes the index file for documentKey. A missing file is not an
// error.
func (w *Writer) Remove(documentKey string) error {
	if err := os.Remove(w.Path(documentKey)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing index file: %w", err)
	}
	return nil
}

// RemoveAll deletes every index file in the data directory and returns how
// many were removed.
func (w *Writer) RemoveAll() (int, error) {
	matches, err := filepath.Glob(filepath.Join(w.dataDir, "*"+Extension))
	if err != nil {
		return 0, fmt.Errorf("listing index files: %w", err)
	}
	removed := 0
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("removing %s: %w", filepath.Base(path), err)
		}
		removed++
	}
	return removed, nil
}
