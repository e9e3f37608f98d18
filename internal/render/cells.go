// Package render projects the board into the view model the grid frontend
// draws, and routes every pointer interaction back to the board.
package render

import (
	"bento/internal/domain"
	"bento/internal/layout"
)

// Kind selects which view a cell renders.
type Kind string

const (
	KindLink        Kind = "link"
	KindImage       Kind = "image"
	KindText        Kind = "text"
	KindPlaceholder Kind = "placeholder"
)

// LinkView is a clickable card. While metadata is pending Skeleton is set;
// when it failed Bare is set and Title is the URL.
type LinkView struct {
	Href        string `json:"href"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Target      string `json:"target"`
	Skeleton    bool   `json:"skeleton,omitempty"`
	Bare        bool   `json:"bare,omitempty"`
}

// ImageView fills the cell. The inner image is never draggable; the cell is.
type ImageView struct {
	Src       string `json:"src"`
	Fit       string `json:"fit"`
	Draggable bool   `json:"draggable"`
}

// TextView is freeform text clipped only by the cell itself.
type TextView struct {
	Body     string `json:"body"`
	Overflow string `json:"overflow"`
}

// Control actions.
const (
	ActionDelete = "delete"
	ActionPreset = "preset"
)

// Control is one hover button.
type Control struct {
	Action string                `json:"action"`
	Preset domain.PresetCategory `json:"preset,omitempty"`
	W      int                   `json:"w,omitempty"`
	H      int                   `json:"h,omitempty"`
}

// CellView is everything the frontend needs to draw one cell.
type CellView struct {
	domain.LayoutItem
	State    State      `json:"state"`
	Kind     Kind       `json:"kind"`
	Link     *LinkView  `json:"link,omitempty"`
	Image    *ImageView `json:"image,omitempty"`
	Text     *TextView  `json:"text,omitempty"`
	Controls []Control  `json:"controls,omitempty"`
}

// Lookup resolves the content of a cell.
type Lookup func(id string) (domain.Content, bool)

// Cells renders items in order. It reads but never mutates its inputs, and a
// cell whose content is missing renders as a placeholder.
func Cells(items []domain.LayoutItem, lookup Lookup, states map[string]State, bp domain.BreakpointState) []CellView {
	out := make([]CellView, 0, len(items))
	for _, it := range items {
		st := states[it.ID]
		if st == "" {
			st = StateIdle
		}
		v := CellView{LayoutItem: it, State: st, Kind: KindPlaceholder}

		var c domain.Content
		var ok bool
		if lookup != nil {
			c, ok = lookup(it.ID)
		}
		if ok {
			switch c := c.(type) {
			case domain.LinkContent:
				v.Kind = KindLink
				v.Link = linkView(c)
			case domain.ImageContent:
				v.Kind = KindImage
				v.Image = &ImageView{Src: c.URL, Fit: "cover"}
			case domain.TextContent:
				v.Kind = KindText
				v.Text = &TextView{Body: c.Text, Overflow: "visible"}
			}
		}

		if showControls(it, st) {
			v.Controls = controls(bp)
		}
		out = append(out, v)
	}
	return out
}

func linkView(c domain.LinkContent) *LinkView {
	v := &LinkView{Href: c.URL, Title: c.Title, Target: "_blank"}
	switch c.Meta {
	case domain.MetaPending:
		v.Skeleton = true
	case domain.MetaFailed:
		v.Bare = true
		v.Title = ""
	default:
		v.Description = c.Description
		v.Image = c.Image
	}
	if v.Title == "" {
		v.Title = c.URL
	}
	return v
}

func showControls(it domain.LayoutItem, st State) bool {
	if it.Static {
		return false
	}
	return st == StateHovered || st == StateMenuOpen
}

// controls lists delete followed by one button per preset, sized for bp.
func controls(bp domain.BreakpointState) []Control {
	out := []Control{{Action: ActionDelete}}
	for _, cat := range domain.PresetCategories {
		size, err := layout.ResolvePreset(bp.Name, cat)
		if err != nil {
			continue
		}
		out = append(out, Control{Action: ActionPreset, Preset: cat, W: size.W, H: size.H})
	}
	return out
}
