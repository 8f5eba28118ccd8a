// Package textsource provides the page-text collaborators the indexer and
// page cache consume: the Source contract, an in-memory source, a
// form-feed-paged file source, and a plain-text page renderer.
package textsource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"
)

// Source yields per-page plain text for one document.
type Source interface {
	// PageCount returns the total number of pages.
	PageCount() int
	// Text returns the plain text of a page. An error means extraction failed
	// for that page only.
	Text(ctx context.Context, pageIndex int) (string, error)
}

// Modified is implemented by sources that know when their content last
// changed. The indexer uses it to reject stale persisted indices.
type Modified interface {
	ModTime() time.Time
}

// Located is implemented by sources backed by a file on disk.
type Located interface {
	Path() string
}

// ContentKey derives a document key from content so that an edited file
// never reuses an old index.
func ContentKey(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PageSeparator splits pages in text exports (pdftotext and friends).
const PageSeparator = "\f"

// Static is an in-memory Source. Pages listed in Failing report an
// extraction error.
type Static struct {
	Pages    []string
	Failing  map[int]error
	Modified time.Time
}

// NewStatic creates a Static source over pages.
func NewStatic(pages ...string) *Static {
	return &Static{Pages: pages}
}

func (s *Static) PageCount() int {
	return len(s.Pages)
}

func (s *Static) Text(_ context.Context, pageIndex int) (string, error) {
	if err, ok := s.Failing[pageIndex]; ok {
		return "", err
	}
	if pageIndex < 0 || pageIndex >= len(s.Pages) {
		return "", fmt.Errorf("page %d out of range [0,%d)", pageIndex, len(s.Pages))
	}
	return s.Pages[pageIndex], nil
}

func (s *Static) ModTime() time.Time {
	return s.Modified
}

// Key returns the content key of the joined pages.
func (s *Static) Key() string {
	return ContentKey([]byte(strings.Join(s.Pages, PageSeparator)))
}

// File is a Source read from a plain-text export on disk.
type File struct {
	path    string
	key     string
	modTime time.Time
	pages   []string
}

// OpenFile reads path and splits it into pages on form feeds. A trailing
// separator does not produce an extra empty page.
func OpenFile(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	content := strings.TrimSuffix(string(data), PageSeparator)
	var pages []string
	if content != "" {
		pages = strings.Split(content, PageSeparator)
	}
	return &File{
		path:    path,
		key:     ContentKey(data),
		modTime: info.ModTime(),
		pages:   pages,
	}, nil
}

func (f *File) PageCount() int {
	return len(f.pages)
}

func (f *File) Text(ctx context.Context, pageIndex int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if pageIndex < 0 || pageIndex >= len(f.pages) {
		return "", fmt.Errorf("page %d out of range [0,%d)", pageIndex, len(f.pages))
	}
	return f.pages[pageIndex], nil
}

func (f *File) ModTime() time.Time {
	return f.modTime
}

func (f *File) Path() string {
	return f.path
}

// Key returns the content-derived document key.
func (f *File) Key() string {
	return f.key
}
