package indexfile

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/errors"
)

// Read loads and verifies an index file. Any framing, checksum, decode or
// format version problem is reported as an error wrapping ErrIndexCorrupt or
// ErrIndexVersion; os.ErrNotExist passes through for missing files.
func Read(path string) (*index.Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading index file: %w", err)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, fmt.Errorf("%w: file too short (%d bytes)", apperrors.ErrIndexCorrupt, len(data))
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %x", apperrors.ErrIndexCorrupt, magic)
	}
	layout := binary.LittleEndian.Uint32(data[4:8])
	if layout != LayoutVersion {
		return nil, fmt.Errorf("%w: layout %d, want %d", apperrors.ErrIndexVersion, layout, LayoutVersion)
	}
	payloadLen := binary.LittleEndian.Uint64(data[8:16])
	if payloadLen != uint64(len(data)-HeaderSize-FooterSize) {
		return nil, fmt.Errorf("%w: payload length %d does not match file size", apperrors.ErrIndexCorrupt, payloadLen)
	}
	payload := data[HeaderSize : HeaderSize+int(payloadLen)]
	checksum := binary.LittleEndian.Uint32(data[HeaderSize+int(payloadLen):])
	if crc32.ChecksumIEEE(payload) != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", apperrors.ErrIndexCorrupt)
	}

	var store index.Store
	if err := json.Unmarshal(payload, &store); err != nil {
		return nil, fmt.Errorf("%w: decoding payload: %v", apperrors.ErrIndexCorrupt, err)
	}
	if !store.Current() {
		return nil, fmt.Errorf("%w: store format %q, want %q", apperrors.ErrIndexVersion, store.FormatVersion, index.FormatVersion)
	}
	if store.PageTexts == nil {
		store.PageTexts = make(map[int]string)
	}
	if store.WordPositions == nil {
		store.WordPositions = make(map[string]index.PostingList)
	}
	if store.ExactPositions == nil {
		store.ExactPositions = make(map[string]index.PostingList)
	}
	return &store, nil
}
