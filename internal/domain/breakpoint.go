package domain

// Breakpoint names a viewport-width tier of the grid.
type Breakpoint string

const (
	BreakpointXXS Breakpoint = "xxs"
	BreakpointXS  Breakpoint = "xs"
	BreakpointSM  Breakpoint = "sm"
)

// BreakpointState is derived from the live container width and never persisted.
type BreakpointState struct {
	Name    Breakpoint `json:"name"`
	Columns int        `json:"columns"`
}

// PresetCategory is an abstract cell size resolved per breakpoint.
type PresetCategory string

const (
	PresetSmallSquare    PresetCategory = "small-square"
	PresetLargeSquare    PresetCategory = "large-square"
	PresetRectHorizontal PresetCategory = "rect-horizontal"
	PresetRectVertical   PresetCategory = "rect-vertical"
)

// PresetCategories lists every category in the order the hover controls show them.
var PresetCategories = []PresetCategory{
	PresetSmallSquare,
	PresetLargeSquare,
	PresetRectHorizontal,
	PresetRectVertical,
}
