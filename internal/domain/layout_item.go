package domain

// LayoutItem is one cell's geometry on the bento grid. X and W are measured in
// columns of the active breakpoint, Y and H in rows. The grid grows downward so
// Y has no upper bound.
type LayoutItem struct {
	ID          string `json:"id"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	W           int    `json:"w"`
	H           int    `json:"h"`
	IsDraggable bool   `json:"isDraggable"`
	IsResizable bool   `json:"isResizable"`
	Static      bool   `json:"static,omitempty"` // hides delete/resize controls
}

// GeometryPatch is a partial update of a cell's geometry. Nil fields are left
// untouched.
type GeometryPatch struct {
	X *int `json:"x,omitempty"`
	Y *int `json:"y,omitempty"`
	W *int `json:"w,omitempty"`
	H *int `json:"h,omitempty"`
}

// Apply returns item with the non-nil fields of p written over it.
func (p GeometryPatch) Apply(item LayoutItem) LayoutItem {
	if p.X != nil {
		item.X = *p.X
	}
	if p.Y != nil {
		item.Y = *p.Y
	}
	if p.W != nil {
		item.W = *p.W
	}
	if p.H != nil {
		item.H = *p.H
	}
	return item
}

// IsEmpty reports whether the patch changes nothing.
func (p GeometryPatch) IsEmpty() bool {
	return p.X == nil && p.Y == nil && p.W == nil && p.H == nil
}

// SizePatch builds a patch that only sets width and height.
func SizePatch(w, h int) GeometryPatch {
	return GeometryPatch{W: &w, H: &h}
}

// MovePatch builds a patch that only sets the origin.
func MovePatch(x, y int) GeometryPatch {
	return GeometryPatch{X: &x, Y: &y}
}
