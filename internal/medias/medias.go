// Package medias handles the image payloads attached to a note: dimension
// sniffing, display clamping, and the bookkeeping needed to patch remote
// image blocks after upload.
package medias

import (
	"bytes"
	"fmt"
	"math"

	"github.com/fumiama/imgsz"
)

// Dimensions regroups the width and height of an image.
type Dimensions struct {
	Width  int
	Height int
}

// Zero returns if the dimensions are not available.
func (d Dimensions) Zero() bool {
	return d.Height == 0 && d.Width == 0
}

func (d Dimensions) Landscape() bool {
	if d.Zero() {
		return false
	}
	return d.Width > d.Height
}

func (d Dimensions) Portrait() bool {
	if d.Zero() {
		return false
	}
	return d.Width < d.Height
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Display limits applied when patching a remote image block. The service
// renders documents in a fixed-width column; anything wider is scaled down.
const (
	MaxDisplayWidth  = 760
	MaxDisplayHeight = 1000
)

// ClampToDisplay scales dimensions down to fit the display limits while
// preserving the aspect ratio. Unknown dimensions are returned unchanged;
// the remote service then applies its own default.
func (d Dimensions) ClampToDisplay() Dimensions {
	if d.Zero() || (d.Width <= MaxDisplayWidth && d.Height <= MaxDisplayHeight) {
		return d
	}
	widthRatio := float64(d.Width) / float64(MaxDisplayWidth)
	heightRatio := float64(d.Height) / float64(MaxDisplayHeight)
	ratio := math.Max(widthRatio, heightRatio)
	return Dimensions{
		Width:  int(math.Round(float64(d.Width) / ratio)),
		Height: int(math.Round(float64(d.Height) / ratio)),
	}
}

// Scale multiplies both dimensions by a factor.
func (d Dimensions) Scale(factor float64) Dimensions {
	if d.Zero() || factor <= 0 {
		return d
	}
	return Dimensions{
		Width:  int(math.Round(float64(d.Width) * factor)),
		Height: int(math.Round(float64(d.Height) * factor)),
	}
}

// ReadImageDimensions extracts the dimensions from image bytes without
// decoding the whole image.
func ReadImageDimensions(data []byte) (Dimensions, error) {
	size, _, err := imgsz.DecodeSize(bytes.NewReader(data))
	if err != nil {
		return Dimensions{}, err
	}
	return Dimensions{
		Width:  size.Width,
		Height: size.Height,
	}, nil
}

// Payload is one image collected from a note, ready to be uploaded and
// bound to its remote image block.
type Payload struct {
	// SourcePath is the local path of the image.
	SourcePath string
	// FileName is the name submitted to the upload endpoint.
	FileName string
	// OrdinalPosition is the 0-based rank of the image inside the note.
	OrdinalPosition int
	// Data holds the binary content (PNG for rasterized diagrams).
	Data []byte
	// Natural holds the intrinsic pixel dimensions when known.
	Natural Dimensions
	// ScaleFactor rescales vector sources (SVG, Mermaid) whose natural
	// dimensions do not reflect the intended display size.
	ScaleFactor float64
}

// DisplayDimensions returns the dimensions to set on the remote block.
func (p *Payload) DisplayDimensions() Dimensions {
	dimensions := p.Natural
	if p.ScaleFactor > 0 && p.ScaleFactor != 1 {
		dimensions = dimensions.Scale(p.ScaleFactor)
	}
	return dimensions.ClampToDisplay()
}

// Rasterizer produces a binary PNG payload from a non-bitmap image source
// (SVG file, Mermaid diagram). Rendering happens outside this package.
type Rasterizer interface {
	Rasterize(source string) (data []byte, dimensions Dimensions, err error)
}
