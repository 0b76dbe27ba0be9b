// Package pipeline runs the decode/detect loop for one video: frames come
// from a FrameSource, a sampler decides which of them reach the Detector,
// and the kept tracks are clipped and normalized to the frame.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/pkg/types"
)

// ErrBadFrame marks a frame that could not be decoded. The source can still
// deliver the frames after it.
var ErrBadFrame = errors.New("undecodable frame")

// DefaultFPS is assumed when a source does not know its frame rate.
const DefaultFPS = 30.0

// FrameSource delivers frames in increasing index order and io.EOF at the end.
type FrameSource interface {
	Next(ctx context.Context) (types.Frame, error)
	Meta() types.StreamMeta
}

var frameExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// DirSource reads a directory of still images as a video, ordered by file name.
type DirSource struct {
	files []string
	next  int
	meta  types.StreamMeta
	start time.Time
}

// NewDirSource lists the frames under dir. fps <= 0 falls back to DefaultFPS.
func NewDirSource(dir string, fps float64) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !frameExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no frames in %s", dir)
	}
	sort.Strings(files)

	if fps <= 0 {
		fps = DefaultFPS
	}
	meta := types.StreamMeta{FPS: fps, FrameEstimate: len(files), SourceLocation: dir}
	if cfg, err := decodeConfig(files[0]); err == nil {
		meta.Width, meta.Height = cfg.Width, cfg.Height
	}

	return &DirSource{files: files, meta: meta, start: time.Now()}, nil
}

func decodeConfig(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	return cfg, err
}

// Meta describes the directory. Width and height come from the first frame.
func (s *DirSource) Meta() types.StreamMeta { return s.meta }

// Next decodes the next file. A file that fails to decode yields an error
// wrapping ErrBadFrame and consumes its index.
func (s *DirSource) Next(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	if s.next >= len(s.files) {
		return types.Frame{}, io.EOF
	}

	idx := s.next
	path := s.files[idx]
	s.next++

	frame := types.Frame{
		Index:     idx,
		Timestamp: s.start.Add(time.Duration(float64(idx) / s.meta.FPS * float64(time.Second))),
		Source:    path,
	}

	f, err := os.Open(path)
	if err != nil {
		return frame, fmt.Errorf("%w: %s: %v", ErrBadFrame, path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return frame, fmt.Errorf("%w: %s: %v", ErrBadFrame, path, err)
	}
	frame.Image = img
	return frame, nil
}

// SliceSource serves in-memory images, mostly for tests and embedding.
type SliceSource struct {
	Images []image.Image
	FPS    float64
	next   int
}

func (s *SliceSource) Meta() types.StreamMeta {
	m := types.StreamMeta{FPS: s.FPS, FrameEstimate: len(s.Images), SourceLocation: "memory"}
	if m.FPS <= 0 {
		m.FPS = DefaultFPS
	}
	if len(s.Images) > 0 && s.Images[0] != nil {
		b := s.Images[0].Bounds()
		m.Width, m.Height = b.Dx(), b.Dy()
	}
	return m
}

func (s *SliceSource) Next(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	if s.next >= len(s.Images) {
		return types.Frame{}, io.EOF
	}
	f := types.Frame{Index: s.next, Image: s.Images[s.next], Source: "memory"}
	s.next++
	return f, nil
}
