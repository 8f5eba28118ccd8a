package textsource

import (
	"context"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"
)

// RenderedPage is the handle the Renderer hands to the page cache: the page
// text laid out into lines no wider than the column width.
type RenderedPage struct {
	Index int
	Lines []string
}

// Renderer lays out Source pages for display. Layouts are memoised in a
// transient cache that the memory coordinator may clear at any time.
type Renderer struct {
	src   Source
	width int

	mu      sync.Mutex
	layouts map[int][]string
	live    int
}

// NewRenderer creates a Renderer wrapping text at width display columns.
func NewRenderer(src Source, width int) *Renderer {
	if width <= 0 {
		width = 80
	}
	return &Renderer{
		src:     src,
		width:   width,
		layouts: make(map[int][]string),
	}
}

func (r *Renderer) PageCount() int {
	return r.src.PageCount()
}

// RenderedPage lays out a page. Pages whose text cannot be extracted render
// as empty pages rather than failing.
func (r *Renderer) RenderedPage(pageIndex int) (any, bool) {
	if pageIndex < 0 || pageIndex >= r.src.PageCount() {
		return nil, false
	}
	r.mu.Lock()
	lines, ok := r.layouts[pageIndex]
	r.mu.Unlock()
	if !ok {
		text, err := r.src.Text(context.Background(), pageIndex)
		if err != nil {
			text = ""
		}
		lines = Wrap(text, r.width)
		r.mu.Lock()
		r.layouts[pageIndex] = lines
		r.mu.Unlock()
	}
	r.mu.Lock()
	r.live++
	r.mu.Unlock()
	return &RenderedPage{Index: pageIndex, Lines: lines}, true
}

// ReleasePage drops a handle previously returned by RenderedPage.
func (r *Renderer) ReleasePage(pageIndex int, handle any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live > 0 {
		r.live--
	}
}

// ClearTransientCaches drops every memoised layout.
func (r *Renderer) ClearTransientCaches() {
	r.mu.Lock()
	r.layouts = make(map[int][]string)
	r.mu.Unlock()
}

// DropDecodedImages is a no-op: plain-text pages carry no images.
func (r *Renderer) DropDecodedImages() {}

// Live returns how many rendered handles are outstanding.
func (r *Renderer) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// CachedLayouts returns how many page layouts are memoised.
func (r *Renderer) CachedLayouts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.layouts)
}

// Wrap breaks text into lines of at most width display columns, keeping
// existing line breaks. Words wider than a line are hard-split.
func Wrap(text string, width int) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		var line strings.Builder
		lineWidth := 0
		for _, word := range words {
			for runewidth.StringWidth(word) > width {
				if lineWidth > 0 {
					lines = append(lines, line.String())
					line.Reset()
					lineWidth = 0
				}
				head := runewidth.Truncate(word, width, "")
				if head == "" {
					break
				}
				lines = append(lines, head)
				word = word[len(head):]
			}
			w := runewidth.StringWidth(word)
			if w == 0 {
				continue
			}
			if lineWidth > 0 && lineWidth+1+w > width {
				lines = append(lines, line.String())
				line.Reset()
				lineWidth = 0
			}
			if lineWidth > 0 {
				line.WriteByte(' ')
				lineWidth++
			}
			line.WriteString(word)
			lineWidth += w
		}
		if lineWidth > 0 {
			lines = append(lines, line.String())
		}
	}
	return lines
}
