// Package images - Image geometry utilities
package images

import (
	"encoding/json"
	"image"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Rect is an axis-aligned bounding box in pixel space of the original frame.
//
// (X1, Y1) is the top-left corner and (X2, Y2) is the bottom-right corner.
type Rect struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

// MarshalJSON encodes the box as the array [x1, y1, x2, y2].
func (r Rect) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float32{r.X1, r.Y1, r.X2, r.Y2})
}

// UnmarshalJSON decodes a box from the array [x1, y1, x2, y2].
func (r *Rect) UnmarshalJSON(data []byte) error {
	var v []float32
	if err := json.Unmarshal(data, &v); err != nil {
		return errors.Wrap(err, "decoding box")
	}
	if len(v) != 4 {
		return errors.Errorf("box must have 4 coordinates, got %d", len(v))
	}
	*r = Rect{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}
	return nil
}

// RectFromCenter builds a Rect from a center point and a size.
//
// Arguments:
//   - cx: The x coordinate of the center.
//   - cy: The y coordinate of the center.
//   - w: The width of the box.
//   - h: The height of the box.
//
// Returns:
//   - Rect: The corner representation of the box.
func RectFromCenter(cx, cy, w, h float32) Rect {
	return Rect{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2,
		Y2: cy + h/2,
	}
}

// RectFromXYWH builds a Rect from a top-left corner and a size.
func RectFromXYWH(x, y, w, h float32) Rect {
	return Rect{X1: x, Y1: y, X2: x + w, Y2: y + h}
}

// Width returns the width of the box, clamped at zero.
func (r Rect) Width() float32 {
	return math32.Max(0, r.X2-r.X1)
}

// Height returns the height of the box, clamped at zero.
func (r Rect) Height() float32 {
	return math32.Max(0, r.Y2-r.Y1)
}

// Area returns the area of the box. Inverted boxes have zero area.
func (r Rect) Area() float32 {
	return r.Width() * r.Height()
}

// Image converts the box to an image.Rectangle, rounding to the nearest pixel.
func (r Rect) Image() image.Rectangle {
	return image.Rect(round(r.X1), round(r.Y1), round(r.X2), round(r.Y2))
}

func round(v float32) int {
	return int(math32.Floor(v + 0.5))
}

// CalculateIoU computes the Intersection over Union of two boxes.
//
//	IoU = Area of Intersection / Area of Union
//
// A value of 1.0 means the boxes are identical, 0.0 means they do not overlap.
// Negative extents (inverted or degenerate boxes) contribute zero area, and a
// non-positive union yields 0 so the result is always in [0, 1].
//
// Arguments:
//   - r: The first box.
//   - o: The other box to compare against.
//
// Returns:
//   - float32: The IoU score.
//
// Example Usage:
// ```go
//
//	a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	iou := CalculateIoU(a, b) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	ix1 := math32.Max(r.X1, o.X1)
	iy1 := math32.Max(r.Y1, o.Y1)
	ix2 := math32.Min(r.X2, o.X2)
	iy2 := math32.Min(r.Y2, o.Y2)

	interArea := math32.Max(0, ix2-ix1) * math32.Max(0, iy2-iy1)

	// Inclusion-exclusion: Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0
	}

	return interArea / unionArea
}
