package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/pkg/types"
)

// Detector runs detection and tracking on one frame. Boxes are in pixels.
type Detector interface {
	Detect(ctx context.Context, frame types.Frame) ([]types.Track, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, frame types.Frame) ([]types.Track, error)

func (f DetectorFunc) Detect(ctx context.Context, frame types.Frame) ([]types.Track, error) {
	return f(ctx, frame)
}

// ReplayDetector serves detections recorded earlier, one JSON track per line:
//
//	{"frame":12,"id":3,"x":10,"y":20,"w":64,"h":48,"score":0.91}
type ReplayDetector struct {
	byFrame map[int][]types.Track
	tracks  int
}

// LoadReplayDetector reads a JSONL detection log from path.
func LoadReplayDetector(path string) (*ReplayDetector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open detection log: %w", err)
	}
	defer f.Close()
	return NewReplayDetector(f)
}

// NewReplayDetector parses a JSONL detection log. Blank lines are ignored.
func NewReplayDetector(r io.Reader) (*ReplayDetector, error) {
	d := &ReplayDetector{byFrame: make(map[int][]types.Track)}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var t types.Track
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("detection log line %d: %w", line, err)
		}
		if t.Frame < 0 {
			return nil, fmt.Errorf("detection log line %d: negative frame %d", line, t.Frame)
		}
		d.byFrame[t.Frame] = append(d.byFrame[t.Frame], t)
		d.tracks++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read detection log: %w", err)
	}
	return d, nil
}

// Len is the number of recorded tracks.
func (d *ReplayDetector) Len() int { return d.tracks }

// Detect returns a copy of the tracks recorded for the frame's index.
func (d *ReplayDetector) Detect(ctx context.Context, frame types.Frame) ([]types.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recorded := d.byFrame[frame.Index]
	out := make([]types.Track, len(recorded))
	copy(out, recorded)
	return out, nil
}
