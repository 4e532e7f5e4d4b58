package models

import "fmt"

// Channel describes how one spectrometer channel is laid out on the shared
// detector: which columns of the slice mask belong to it, which primary header
// keys hold its across-slice offset parameters, and the offset added to its
// native slice labels so they do not collide with the other channel's labels.
type Channel struct {
	// ID is the channel number (3 or 4 for the long-wavelength detector)
	ID int `yaml:"id"`

	// ColumnStart is the first mask column belonging to this channel
	ColumnStart int `yaml:"columnStart"`

	// ColumnEnd is one past the last mask column; -1 means the end of the mask
	ColumnEnd int `yaml:"columnEnd"`

	// InterceptKey names the header value holding the beta offset intercept
	InterceptKey string `yaml:"interceptKey"`

	// SlopeKey names the header value holding the beta offset per slice
	SlopeKey string `yaml:"slopeKey"`

	// IDOffset is added to native slice labels to form global identifiers
	IDOffset int `yaml:"idOffset"`
}

// DefaultChannels returns the channel table for the MIRI long-wavelength
// detector: channel 3 on the left half, channel 4 on the right half.
func DefaultChannels() []Channel {
	return []Channel{
		{ID: 3, ColumnStart: 0, ColumnEnd: 500, InterceptKey: "B_MIN3", SlopeKey: "B_DEL3", IDOffset: 0},
		{ID: 4, ColumnStart: 500, ColumnEnd: -1, InterceptKey: "B_MIN4", SlopeKey: "B_DEL4", IDOffset: 12},
	}
}

// ColumnRange resolves the channel's column range against a mask of the given width.
func (c Channel) ColumnRange(width int) (start, end int) {
	start, end = c.ColumnStart, c.ColumnEnd
	if end < 0 || end > width {
		end = width
	}
	if start > end {
		start = end
	}
	return start, end
}

// GlobalID maps a native slice label to its collision-free identifier.
func (c Channel) GlobalID(rawID int) int {
	return rawID + c.IDOffset
}

func (c Channel) String() string {
	return fmt.Sprintf("channel %d", c.ID)
}

// Bounds is the fit domain of one slice in full-mask coordinates. Rows and
// columns are half-open: [RowMin, RowMax) x [ColMin, ColMax).
type Bounds struct {
	RowMin, RowMax int
	ColMin, ColMax int
}

// Rows returns the number of rows covered by the bounds
func (b Bounds) Rows() int { return b.RowMax - b.RowMin }

// Cols returns the number of columns covered by the bounds
func (b Bounds) Cols() int { return b.ColMax - b.ColMin }

// Empty reports whether the bounds contain no pixel at all.
func (b Bounds) Empty() bool {
	return b.Rows() <= 0 || b.Cols() <= 0
}

func (b Bounds) String() string {
	return fmt.Sprintf("rows [%d,%d) cols [%d,%d)", b.RowMin, b.RowMax, b.ColMin, b.ColMax)
}

// SliceRegion identifies one physical detector slice
type SliceRegion struct {
	// ID is the global identifier (native label plus channel offset)
	ID int

	// RawID is the label as it appears in the slice mask
	RawID int

	// Channel is the channel the slice belongs to
	Channel int

	// Bounds is the pixel region the surfaces were fitted over
	Bounds Bounds
}
