package layout

import "bento/internal/domain"

// DefaultCell is one cell of the built-in seed board.
type DefaultCell struct {
	Item    domain.LayoutItem
	Content domain.Content
}

// DefaultBoard returns the seed used when durable storage is empty. It is laid
// out for the widest tier; Reflow fits it to narrower grids.
func DefaultBoard() []DefaultCell {
	return []DefaultCell{
		{
			Item:    domain.LayoutItem{ID: "welcome", X: 0, Y: 0, W: 2, H: 2, IsDraggable: true, IsResizable: true},
			Content: domain.TextContent{Text: "Welcome to your bento. Drag cells around, hover one to resize or delete it."},
		},
		{
			Item:    domain.LayoutItem{ID: "profile-link", X: 2, Y: 0, W: 2, H: 2, IsDraggable: true, IsResizable: true},
			Content: domain.LinkContent{URL: "https://github.com", Title: "GitHub", Meta: domain.MetaReady},
		},
		{
			Item:    domain.LayoutItem{ID: "about", X: 0, Y: 2, W: 1, H: 2, IsDraggable: true, IsResizable: true},
			Content: domain.TextContent{Text: "About me"},
		},
	}
}
