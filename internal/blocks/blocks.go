// Package blocks lays out heads-tall proportion blocks: a column of
// head-sized cubes as tall as a figure, a column of quarter-height blocks,
// and a row of head cubes at head height. Units are metres.
package blocks

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/spatial/r3"
)

// MaxHeadsTall bounds the number of blocks per group.
const MaxHeadsTall = 1000

// ErrInvalidInput is returned for non-positive or non-finite dimensions and
// for more than MaxHeadsTall heads.
var ErrInvalidInput = errors.New("height and heads tall must be positive and finite")

// Box is one axis-aligned block.
type Box struct {
	Name   string `json:"name"`
	Group  string `json:"group"`
	Center r3.Vec `json:"center"`
	Size   r3.Vec `json:"size"`
}

// Min returns the lower corner.
func (b Box) Min() r3.Vec {
	return r3.Sub(b.Center, r3.Scale(0.5, b.Size))
}

// Max returns the upper corner.
func (b Box) Max() r3.Vec {
	return r3.Add(b.Center, r3.Scale(0.5, b.Size))
}

// Layout is the full set of blocks for one figure.
type Layout struct {
	Name       string   `json:"name"`
	HeightCm   float64  `json:"height_cm"`
	HeadsTall  float64  `json:"heads_tall"`
	HeadSizeCm float64  `json:"head_size_cm"`
	Groups     []string `json:"groups"`
	Boxes      []Box    `json:"boxes"`
}

// Group returns the boxes of the named group in order.
func (l Layout) Group(name string) []Box {
	var out []Box
	for _, b := range l.Boxes {
		if b.Group == name {
			out = append(out, b)
		}
	}
	return out
}

// Bounds returns the corners enclosing every box.
func (l Layout) Bounds() (lo, hi r3.Vec) {
	if len(l.Boxes) == 0 {
		return r3.Vec{}, r3.Vec{}
	}
	lo, hi = l.Boxes[0].Min(), l.Boxes[0].Max()
	for _, b := range l.Boxes[1:] {
		bmin, bmax := b.Min(), b.Max()
		lo = r3.Vec{X: math.Min(lo.X, bmin.X), Y: math.Min(lo.Y, bmin.Y), Z: math.Min(lo.Z, bmin.Z)}
		hi = r3.Vec{X: math.Max(hi.X, bmax.X), Y: math.Max(hi.Y, bmax.Y), Z: math.Max(hi.Z, bmax.Z)}
	}
	return lo, hi
}

// label formats a dimension the way it appears in names: the shortest
// single-precision representation.
func label(v float64) string {
	return strconv.FormatFloat(float64(float32(v)), 'f', -1, 32)
}

// Generate builds the layout for a figure heightCm tall that is headsTall
// heads high.
func Generate(heightCm, headsTall float64) (Layout, error) {
	if !(heightCm > 0) || !(headsTall > 0) || math.IsInf(heightCm, 0) || math.IsInf(headsTall, 0) {
		return Layout{}, fmt.Errorf("%w: height %v cm, %v heads", ErrInvalidInput, heightCm, headsTall)
	}
	if headsTall > MaxHeadsTall {
		return Layout{}, fmt.Errorf("%w: %v heads exceeds %d", ErrInvalidInput, headsTall, MaxHeadsTall)
	}

	headSizeCm := heightCm / headsTall
	headSize := headSizeCm / 100
	fullBlocks := int(math.Floor(headsTall))
	fraction := headsTall - float64(fullBlocks)

	l := Layout{
		Name:       fmt.Sprintf("HeadsTallBlocks_%scm_%sHeads", label(heightCm), label(headsTall)),
		HeightCm:   heightCm,
		HeadsTall:  headsTall,
		HeadSizeCm: headSizeCm,
	}

	// Head column: the partial block sits at the bottom.
	vertical := fmt.Sprintf("Group_Head%scm_Vertical", label(headSizeCm))
	l.Groups = append(l.Groups, vertical)
	y := 0.0
	if fraction > 0 {
		h := headSize * fraction
		l.Boxes = append(l.Boxes, Box{
			Name:   fmt.Sprintf("Block_Partial_%.2f", fraction),
			Group:  vertical,
			Center: r3.Vec{Y: h / 2},
			Size:   r3.Vec{X: headSize, Y: h, Z: headSize},
		})
		y += h
	}
	for i := range fullBlocks {
		l.Boxes = append(l.Boxes, Box{
			Name:   fmt.Sprintf("Block_%d", i+1),
			Group:  vertical,
			Center: r3.Vec{Y: y + headSize/2},
			Size:   r3.Vec{X: headSize, Y: headSize, Z: headSize},
		})
		y += headSize
	}

	// Quarter-height column beside it.
	quarter := fmt.Sprintf("Group_Quarter%scm", label(heightCm/4))
	l.Groups = append(l.Groups, quarter)
	quarterSize := heightCm / 4 / 100
	for i := range 4 {
		l.Boxes = append(l.Boxes, Box{
			Name:   fmt.Sprintf("Block_%d", i+1),
			Group:  quarter,
			Center: r3.Vec{X: headSize, Y: quarterSize*float64(i) + quarterSize/2},
			Size:   r3.Vec{X: headSize, Y: quarterSize, Z: headSize},
		})
	}

	// Head row centred on x=0 with its centre half a head below the top.
	horizontal := fmt.Sprintf("Group_Head%scm_Horizontal", label(headSizeCm))
	l.Groups = append(l.Groups, horizontal)
	count := fullBlocks
	if fraction > 0 {
		count++
	}
	topY := heightCm/100 - headSize/2
	startX := -float64(count)*headSize/2 + headSize/2
	for i := range count {
		l.Boxes = append(l.Boxes, Box{
			Name:   fmt.Sprintf("Block_%d", i+1),
			Group:  horizontal,
			Center: r3.Vec{X: startX + headSize*float64(i), Y: topY},
			Size:   r3.Vec{X: headSize, Y: headSize, Z: headSize},
		})
	}

	return l, nil
}
