package cutting

import "strings"

// CutterConfig bounds the size of each chunk TextCutter produces. Sizes
// are measured in bytes of the UTF-8 text (len), not in runes; the two
// agree only for ASCII text. Defaults match original_source's
// cutting/cutter/config.rs.
type CutterConfig struct {
	TargetSize int
	MinSize    int
	MaxSize    int
}

// DefaultCutterConfig returns the spec's default bounds.
func DefaultCutterConfig() CutterConfig {
	return CutterConfig{TargetSize: 300, MinSize: 150, MaxSize: 800}
}

// ChunkInfo is the intermediate representation TextCutter produces before
// Cut IDs and persistence metadata are attached.
type ChunkInfo struct {
	Content   string
	Sequence  int
	ByteStart int
	ByteEnd   int
}

// TextCutter splits text into chunks honoring CutterConfig's bounds.
// There is no library in the example pack for semantic text splitting
// (the original Rust implementation delegated to an external crate), so
// this is a hand-built boundary-preference splitter: it prefers to break
// at a paragraph boundary, falling back to a sentence boundary, then a
// word boundary, then a hard character cut — in that order, as a quality
// goal rather than a correctness requirement. The final chunk may be
// shorter than MinSize, and concatenating every chunk's Content
// reproduces the input exactly.
type TextCutter struct {
	config CutterConfig
}

// NewTextCutter creates a TextCutter with the given bounds.
func NewTextCutter(config CutterConfig) *TextCutter {
	return &TextCutter{config: config}
}

// Cut splits text into an ordered, non-overlapping slice of ChunkInfo.
// An empty input yields no chunks.
func (c *TextCutter) Cut(text string) ([]ChunkInfo, error) {
	if text == "" {
		return nil, nil
	}

	var chunks []ChunkInfo
	remaining := text
	byteOffset := 0
	seq := 0

	for len(remaining) > 0 {
		if len(remaining) <= c.config.MaxSize {
			chunks = append(chunks, ChunkInfo{
				Content:   remaining,
				Sequence:  seq,
				ByteStart: byteOffset,
				ByteEnd:   byteOffset + len(remaining),
			})
			break
		}

		cut := c.findBoundary(remaining)
		chunks = append(chunks, ChunkInfo{
			Content:   remaining[:cut],
			Sequence:  seq,
			ByteStart: byteOffset,
			ByteEnd:   byteOffset + cut,
		})
		remaining = remaining[cut:]
		byteOffset += cut
		seq++
	}

	return chunks, nil
}

// findBoundary picks a split point within [MinSize, MaxSize] of text,
// preferring paragraph > sentence > word > hard character breaks.
func (c *TextCutter) findBoundary(text string) int {
	max := c.config.MaxSize
	if max > len(text) {
		max = len(text)
	}
	min := c.config.MinSize
	if min > max {
		min = 0
	}
	target := c.config.TargetSize
	if target > max {
		target = max
	}

	window := text[:max]

	if idx := lastIndexAfter(window, "\n\n", min); idx > 0 {
		return idx
	}
	if idx := lastSentenceBoundary(window, min); idx > 0 {
		return idx
	}
	if idx := lastIndexAfter(window, " ", min); idx > 0 {
		return idx
	}
	if target > 0 {
		return target
	}
	return max
}

// lastIndexAfter returns the offset just past the last occurrence of sep
// in text, provided that offset is >= min. Returns -1 if none qualifies.
func lastIndexAfter(text, sep string, min int) int {
	best := -1
	from := 0
	for {
		idx := strings.Index(text[from:], sep)
		if idx < 0 {
			break
		}
		abs := from + idx + len(sep)
		if abs >= min {
			best = abs
		}
		from += idx + len(sep)
	}
	return best
}

// lastSentenceBoundary finds the offset just past the last sentence
// terminator (. ! ?) followed by a space or a newline, at or beyond min.
func lastSentenceBoundary(text string, min int) int {
	best := -1
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' || text[i+1] == '\n' {
				end := i + 2
				if end >= min {
					best = end
				}
			}
		}
	}
	return best
}
