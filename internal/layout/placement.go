package layout

import "bento/internal/domain"

// DefaultCellSize is the geometry a dock add uses when the caller gives none.
var DefaultCellSize = Size{W: 1, H: 2}

// maxScanRows bounds the free-slot search; past it the cell goes below everything.
const maxScanRows = 4096

// rect is an axis-aligned box in grid units.
type rect struct {
	x, y, w, h int
}

func (a rect) intersects(b rect) bool {
	return a.x < b.x+b.w && a.x+a.w > b.x &&
		a.y < b.y+b.h && a.y+a.h > b.y
}

func rectOf(item domain.LayoutItem) rect {
	return rect{item.X, item.Y, item.W, item.H}
}

// Clamp fits item horizontally into a grid of the given column count: W is
// kept within [1, columns], X is pulled left until X+W <= columns, and H and Y
// are floored at 1 and 0. A non-positive column count leaves X and W alone.
func Clamp(item domain.LayoutItem, columns int) domain.LayoutItem {
	if item.W < 1 {
		item.W = 1
	}
	if item.H < 1 {
		item.H = 1
	}
	if item.Y < 0 {
		item.Y = 0
	}
	if item.X < 0 {
		item.X = 0
	}
	if columns <= 0 {
		return item
	}
	if item.W > columns {
		item.W = columns
	}
	if item.X+item.W > columns {
		item.X = columns - item.W
	}
	return item
}

// NextSlot finds the first free origin, scanning rows top to bottom and
// columns left to right, for a cell of size (w, h) among existing cells.
func NextSlot(existing []domain.LayoutItem, w, h, columns int) (int, int) {
	probe := Clamp(domain.LayoutItem{W: w, H: h}, columns)
	if len(existing) == 0 {
		return 0, 0
	}
	if columns <= 0 {
		return 0, Bottom(existing)
	}

	occupied := make([]rect, len(existing))
	for i, it := range existing {
		occupied[i] = rectOf(it)
	}

	candidate := rect{w: probe.W, h: probe.H}
	for y := 0; y < maxScanRows; y++ {
		for x := 0; x+probe.W <= columns; x++ {
			candidate.x, candidate.y = x, y
			overlaps := false
			for _, occ := range occupied {
				if candidate.intersects(occ) {
					overlaps = true
					break
				}
			}
			if !overlaps {
				return x, y
			}
		}
	}

	return 0, Bottom(existing)
}

// Bottom returns the first row below every cell.
func Bottom(items []domain.LayoutItem) int {
	maxY := 0
	for _, it := range items {
		if it.Y+it.H > maxY {
			maxY = it.Y + it.H
		}
	}
	return maxY
}
