package vision

import (
	"fmt"

	"github.com/your-org/inspectline/internal/types"
)

// Tensor is a dense float32 buffer shaped (1, channels, H, W),
// channel-first, values normalized to [0, 1]. Lifetime is one
// inference call.
type Tensor struct {
	Data     []float32
	Channels int
	H        int
	W        int
}

// LetterboxTransform records enough state to map detection boxes from
// model-input pixel coordinates back to source-image pixel
// coordinates.
type LetterboxTransform struct {
	Scale float32
	PadX  int
	PadY  int
	SrcW  int
	SrcH  int
}

// letterboxGray is the padding fill value, 114/255, matching the
// conventional YOLO-family letterbox gray.
const letterboxGray = 114.0 / 255.0

// Preprocess letterbox-resizes src to (modelW, modelH) and packs the
// result into a normalized channel-first float32 tensor. BGR input is
// reordered to RGB; a single-channel source is replicated across all
// three output channels.
func Preprocess(src types.Image, modelW, modelH int) (Tensor, LetterboxTransform, error) {
	if src.Width == 0 || src.Height == 0 {
		return Tensor{}, LetterboxTransform{}, fmt.Errorf("preprocess %dx%d: %w", src.Width, src.Height, ErrInvalidImage)
	}
	if src.Channels != 1 && src.Channels != 3 {
		return Tensor{}, LetterboxTransform{}, fmt.Errorf("preprocess channels=%d: %w", src.Channels, ErrUnsupportedChannels)
	}

	scaleW := float32(modelW) / float32(src.Width)
	scaleH := float32(modelH) / float32(src.Height)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}

	resizedW := roundHalfUp(float32(src.Width) * scale)
	resizedH := roundHalfUp(float32(src.Height) * scale)
	if resizedW > modelW {
		resizedW = modelW
	}
	if resizedH > modelH {
		resizedH = modelH
	}
	if resizedW < 1 {
		resizedW = 1
	}
	if resizedH < 1 {
		resizedH = 1
	}

	padTotalX := modelW - resizedW
	padTotalY := modelH - resizedH
	padLeft := padTotalX / 2
	padTop := padTotalY / 2
	// Odd remainder goes to the right/bottom edge.

	transform := LetterboxTransform{
		Scale: scale,
		PadX:  padLeft,
		PadY:  padTop,
		SrcW:  src.Width,
		SrcH:  src.Height,
	}

	planeSize := modelH * modelW
	data := make([]float32, 3*planeSize)
	for i := range data {
		data[i] = letterboxGray
	}

	// Bilinear-resample src into the resized region, then pack
	// channel-first with BGR->RGB reorder and /255 normalization.
	// The pixel loop is written as flat index arithmetic (no
	// per-pixel interface calls) so it stays vectorizable.
	srcW := src.Width
	srcH := src.Height
	srcCh := src.Channels
	pix := src.Pix

	for y := 0; y < resizedH; y++ {
		// Map destination row back to a fractional source row.
		srcY := (float32(y) + 0.5) / scale - 0.5
		if srcY < 0 {
			srcY = 0
		}
		y0 := int(srcY)
		y1 := y0 + 1
		if y1 >= srcH {
			y1 = srcH - 1
		}
		if y0 >= srcH {
			y0 = srcH - 1
		}
		fy := srcY - float32(y0)

		for x := 0; x < resizedW; x++ {
			srcX := (float32(x) + 0.5) / scale - 0.5
			if srcX < 0 {
				srcX = 0
			}
			x0 := int(srcX)
			x1 := x0 + 1
			if x1 >= srcW {
				x1 = srcW - 1
			}
			if x0 >= srcW {
				x0 = srcW - 1
			}
			fx := srcX - float32(x0)

			var r, g, b float32
			if srcCh == 1 {
				v := bilinear1(pix, srcW, x0, y0, x1, y1, fx, fy)
				r, g, b = v, v, v
			} else {
				// Source channel order is BGR; reorder to RGB on read.
				b = bilinear3(pix, srcW, srcCh, 0, x0, y0, x1, y1, fx, fy)
				g = bilinear3(pix, srcW, srcCh, 1, x0, y0, x1, y1, fx, fy)
				r = bilinear3(pix, srcW, srcCh, 2, x0, y0, x1, y1, fx, fy)
			}

			dx := x + padLeft
			dy := y + padTop
			idx := dy*modelW + dx
			data[idx] = r / 255.0
			data[planeSize+idx] = g / 255.0
			data[2*planeSize+idx] = b / 255.0
		}
	}

	return Tensor{Data: data, Channels: 3, H: modelH, W: modelW}, transform, nil
}

func bilinear1(pix []byte, srcW, x0, y0, x1, y1 int, fx, fy float32) float32 {
	p00 := float32(pix[y0*srcW+x0])
	p10 := float32(pix[y0*srcW+x1])
	p01 := float32(pix[y1*srcW+x0])
	p11 := float32(pix[y1*srcW+x1])
	top := p00 + (p10-p00)*fx
	bot := p01 + (p11-p01)*fx
	return top + (bot-top)*fy
}

func bilinear3(pix []byte, srcW, channels, ch, x0, y0, x1, y1 int, fx, fy float32) float32 {
	off := func(x, y int) int { return (y*srcW+x)*channels + ch }
	p00 := float32(pix[off(x0, y0)])
	p10 := float32(pix[off(x1, y0)])
	p01 := float32(pix[off(x0, y1)])
	p11 := float32(pix[off(x1, y1)])
	top := p00 + (p10-p00)*fx
	bot := p01 + (p11-p01)*fx
	return top + (bot-top)*fy
}

func roundHalfUp(v float32) int {
	if v < 0 {
		return int(v - 0.5)
	}
	return int(v + 0.5)
}

// UnmapBox converts a box in model-input pixel coordinates to source
// image pixel coordinates and clamps it to the image bounds.
func (t LetterboxTransform) UnmapBox(cx, cy, w, h float32) (ncx, ncy, nw, nh float32) {
	left := (cx - w/2 - float32(t.PadX)) / t.Scale
	top := (cy - h/2 - float32(t.PadY)) / t.Scale
	right := (cx + w/2 - float32(t.PadX)) / t.Scale
	bottom := (cy + h/2 - float32(t.PadY)) / t.Scale

	left = clamp(left, 0, float32(t.SrcW))
	right = clamp(right, 0, float32(t.SrcW))
	top = clamp(top, 0, float32(t.SrcH))
	bottom = clamp(bottom, 0, float32(t.SrcH))

	nw = right - left
	nh = bottom - top
	ncx = left + nw/2
	ncy = top + nh/2
	return
}

// UnmapPoint converts a single point in model-input pixel coordinates
// to source-image pixel coordinates, without clamping (keypoints may
// legitimately fall slightly outside the visible frame).
func (t LetterboxTransform) UnmapPoint(x, y float32) (float32, float32) {
	return (x - float32(t.PadX)) / t.Scale, (y - float32(t.PadY)) / t.Scale
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
