package sampling

import (
	"image"

	"gocv.io/x/gocv"
	"golang.org/x/image/draw"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/logger"
)

const (
	// BlurKernelSize is the side of the Gaussian window applied before diffing.
	BlurKernelSize = 21
	// PixelDeltaThreshold is the luminance change (0-255) a pixel must exceed to count as moved.
	PixelDeltaThreshold = 25
)

// MotionScorer turns consecutive frames into a changed-pixel fraction in [0,1].
//
// It keeps only the previous blurred grayscale Mat. Call Close to release it.
type MotionScorer struct {
	downscaleWidth int

	prev    gocv.Mat
	hasPrev bool

	// compact staging images handed to gocv, reused between frames
	gray *image.Gray
	rgba *image.RGBA
}

// NewMotionScorer returns a scorer using the default kernel and delta
// threshold. downscaleWidth > 0 shrinks wider frames before scoring.
func NewMotionScorer(downscaleWidth int) *MotionScorer {
	return &MotionScorer{downscaleWidth: downscaleWidth}
}

// HasPrevious reports whether a reference frame is stored.
func (m *MotionScorer) HasPrevious() bool { return m.hasPrev }

// Reset drops the reference frame.
func (m *MotionScorer) Reset() {
	if m.hasPrev {
		m.prev.Close()
		m.prev = gocv.Mat{}
		m.hasPrev = false
	}
}

// Close releases the reference frame. The scorer stays usable.
func (m *MotionScorer) Close() { m.Reset() }

// SetDownscaleWidth changes the working width for subsequent frames.
func (m *MotionScorer) SetDownscaleWidth(width int) {
	if width != m.downscaleWidth {
		m.downscaleWidth = width
		m.Reset()
	}
}

// Score returns the fraction of pixels whose blurred luminance moved by more
// than the delta threshold since the previous call. The first frame, a frame
// of a different size than the previous one, and an empty frame all score 0.
func (m *MotionScorer) Score(img image.Image) float64 {
	if img == nil || img.Bounds().Empty() {
		m.Reset()
		return 0
	}

	gray, err := m.grayMat(img)
	if err != nil {
		logger.Warn("Motion", "Frame conversion failed: %v", err)
		m.Reset()
		return 0
	}
	defer gray.Close()

	blurred := gocv.NewMat()
	gocv.GaussianBlur(gray, &blurred, image.Pt(BlurKernelSize, BlurKernelSize), 0, 0, gocv.BorderDefault)

	score := 0.0
	if m.hasPrev && blurred.Rows() == m.prev.Rows() && blurred.Cols() == m.prev.Cols() {
		diff := gocv.NewMat()
		defer diff.Close()
		gocv.AbsDiff(blurred, m.prev, &diff)

		mask := gocv.NewMat()
		defer mask.Close()
		gocv.Threshold(diff, &mask, PixelDeltaThreshold, 255, gocv.ThresholdBinary)

		score = float64(gocv.CountNonZero(mask)) / float64(mask.Rows()*mask.Cols())
	}

	m.Reset()
	m.prev = blurred
	m.hasPrev = true
	return score
}

// grayMat returns a single-channel 8-bit Mat of img at the working size.
// Gray frames and the luma plane of YCbCr frames skip the color conversion.
func (m *MotionScorer) grayMat(img image.Image) (gocv.Mat, error) {
	if ycc, ok := img.(*image.YCbCr); ok {
		img = &image.Gray{Pix: ycc.Y, Stride: ycc.YStride, Rect: ycc.Rect}
	}
	r := m.workingRect(img.Bounds())

	if _, ok := img.(*image.Gray); ok {
		if m.gray == nil || m.gray.Rect != r {
			m.gray = image.NewGray(r)
		}
		fit(m.gray, img)
		return gocv.ImageGrayToMatGray(m.gray)
	}

	if m.rgba == nil || m.rgba.Rect != r {
		m.rgba = image.NewRGBA(r)
	}
	fit(m.rgba, img)
	bgr, err := gocv.ImageToMatRGB(m.rgba)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer bgr.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)
	return gray, nil
}

// workingRect is the zero-origin size frames are scored at.
func (m *MotionScorer) workingRect(b image.Rectangle) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	if m.downscaleWidth > 0 && w > m.downscaleWidth {
		h = max(h*m.downscaleWidth/w, 1)
		w = m.downscaleWidth
	}
	return image.Rect(0, 0, w, h)
}

// fit copies src into dst, scaling when the sizes differ.
func fit(dst draw.Image, src image.Image) {
	r, b := dst.Bounds(), src.Bounds()
	if r.Size() == b.Size() {
		draw.Draw(dst, r, src, b.Min, draw.Src)
		return
	}
	draw.ApproxBiLinear.Scale(dst, r, src, b, draw.Src, nil)
}
