// Package cutting implements the Cutting stage: splitting a Material's
// text content into ordered, non-overlapping Cuts and persisting them.
package cutting

import "time"

// Cut is a single chunk produced from a Material's content.
type Cut struct {
	ID              string
	MaterialID      string
	ChunkIndex      int
	Content         string
	CreatedAt       time.Time
	TokenCount      *int
	ByteOffsetStart *int
	ByteOffsetEnd   *int
}

// NewCut constructs a Cut with only the required fields set.
func NewCut(idGen func() string, materialID string, chunkIndex int, content string, now time.Time) Cut {
	return Cut{
		ID:         idGen(),
		MaterialID: materialID,
		ChunkIndex: chunkIndex,
		Content:    content,
		CreatedAt:  now,
	}
}

// WithDetails returns a copy of c with optional token-count and
// byte-offset metadata attached.
func (c Cut) WithDetails(tokenCount, byteOffsetStart, byteOffsetEnd int) Cut {
	c.TokenCount = &tokenCount
	c.ByteOffsetStart = &byteOffsetStart
	c.ByteOffsetEnd = &byteOffsetEnd
	return c
}
