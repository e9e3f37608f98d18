package layout

import (
	"errors"
	"fmt"

	"bento/internal/domain"
)

// ErrUnknownPreset is returned for a (breakpoint, category) pair missing from
// the preset table.
var ErrUnknownPreset = errors.New("unknown size preset")

// Size is a width/height pair in grid units.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

// presets maps every breakpoint to a concrete size for every category. The
// same category can span a different share of the row on each tier because the
// column counts differ.
var presets = map[domain.Breakpoint]map[domain.PresetCategory]Size{
	domain.BreakpointSM: {
		domain.PresetSmallSquare:    {W: 1, H: 2},
		domain.PresetLargeSquare:    {W: 2, H: 4},
		domain.PresetRectHorizontal: {W: 2, H: 2},
		domain.PresetRectVertical:   {W: 1, H: 4},
	},
	domain.BreakpointXS: {
		domain.PresetSmallSquare:    {W: 1, H: 2},
		domain.PresetLargeSquare:    {W: 2, H: 4},
		domain.PresetRectHorizontal: {W: 2, H: 2},
		domain.PresetRectVertical:   {W: 1, H: 4},
	},
	domain.BreakpointXXS: {
		domain.PresetSmallSquare:    {W: 1, H: 1},
		domain.PresetLargeSquare:    {W: 2, H: 2},
		domain.PresetRectHorizontal: {W: 2, H: 1},
		domain.PresetRectVertical:   {W: 1, H: 2},
	},
}

// ResolvePreset returns the concrete size of category on breakpoint bp.
func ResolvePreset(bp domain.Breakpoint, category domain.PresetCategory) (Size, error) {
	byCategory, ok := presets[bp]
	if !ok {
		return Size{}, fmt.Errorf("resolve preset %s/%s: breakpoint: %w", bp, category, ErrUnknownPreset)
	}
	size, ok := byCategory[category]
	if !ok {
		return Size{}, fmt.Errorf("resolve preset %s/%s: %w", bp, category, ErrUnknownPreset)
	}
	return size, nil
}

// ParseCategory validates a category name coming from an adapter (MCP, bindings).
func ParseCategory(s string) (domain.PresetCategory, error) {
	for _, c := range domain.PresetCategories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("parse preset %q: %w", s, ErrUnknownPreset)
}
