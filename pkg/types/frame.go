package types

import (
	"image"
	"time"
)

// Frame is one decoded video frame with metadata
type Frame struct {
	Index     int         // Sequential frame index, starting at 0
	Image     image.Image // Decoded pixels
	Timestamp time.Time   // Presentation time (derived from fps for file sources)
	Source    string      // File or stream the frame came from
}

// Width of the frame in pixels, 0 for a missing image.
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height of the frame in pixels, 0 for a missing image.
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Track is a single detector/tracker result in pixel coordinates
type Track struct {
	Frame int      `json:"frame"`        // Frame index the detection belongs to
	ID    *int     `json:"id,omitempty"` // Tracker identity, nil when untracked
	X     float64  `json:"x"`            // Left edge
	Y     float64  `json:"y"`            // Top edge
	W     float64  `json:"w"`
	H     float64  `json:"h"`
	Score float64  `json:"score"`
	Label string   `json:"label,omitempty"`
	Box   *NormBox `json:"box,omitempty"` // Set once the track is clipped and normalized
}

// NormBox is a box normalized to [0,1] by the frame size
type NormBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Area of the normalized box
func (b NormBox) Area() float64 {
	return b.W * b.H
}

// StreamMeta describes a frame source
type StreamMeta struct {
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	FPS            float64 `json:"fps"`
	FrameEstimate  int     `json:"frame_estimate"` // 0 when unknown
	SourceLocation string  `json:"source"`
}
