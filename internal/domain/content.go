package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ContentType is the discriminator of a cell's payload.
type ContentType string

const (
	ContentTypeLink  ContentType = "link"
	ContentTypeImage ContentType = "image"
	ContentTypeText  ContentType = "text"
)

// ErrUnknownContentType is returned when decoding a payload whose "type" is not
// one of the known content types.
var ErrUnknownContentType = errors.New("unknown content type")

// Content is the semantic payload of a cell. The set of implementations is
// closed: LinkContent, ImageContent and TextContent.
type Content interface {
	Type() ContentType
	isContent()
}

// MetaState tracks the link metadata fetch for a link cell.
type MetaState string

const (
	MetaPending MetaState = "pending"
	MetaReady   MetaState = "ready"
	MetaFailed  MetaState = "failed"
)

// LinkContent is a link card. Title, Description and Image come from the
// link-metadata collaborator and stay empty until Meta leaves MetaPending.
type LinkContent struct {
	URL         string    `json:"url"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Image       string    `json:"image,omitempty"`
	Meta        MetaState `json:"meta,omitempty"`
}

// ImageContent is an uploaded or linked picture filling the cell.
type ImageContent struct {
	URL string `json:"url"`
}

// TextContent is freeform text filling the cell.
type TextContent struct {
	Text string `json:"text"`
}

func (LinkContent) Type() ContentType  { return ContentTypeLink }
func (ImageContent) Type() ContentType { return ContentTypeImage }
func (TextContent) Type() ContentType  { return ContentTypeText }

func (LinkContent) isContent()  {}
func (ImageContent) isContent() {}
func (TextContent) isContent()  {}

// Normalize fills defaults so content compares equal however it was built.
// A link without a fetch state is treated as ready.
func Normalize(c Content) Content {
	if v, ok := c.(LinkContent); ok && v.Meta == "" {
		v.Meta = MetaReady
		return v
	}
	return c
}

// MarshalContent encodes c as a flat JSON object with a "type" discriminator,
// e.g. {"type":"text","text":"Hello"}.
func MarshalContent(c Content) ([]byte, error) {
	switch v := c.(type) {
	case LinkContent:
		return json.Marshal(struct {
			Type ContentType `json:"type"`
			LinkContent
		}{ContentTypeLink, v})
	case ImageContent:
		return json.Marshal(struct {
			Type ContentType `json:"type"`
			ImageContent
		}{ContentTypeImage, v})
	case TextContent:
		return json.Marshal(struct {
			Type ContentType `json:"type"`
			TextContent
		}{ContentTypeText, v})
	default:
		return nil, fmt.Errorf("marshal content %T: %w", c, ErrUnknownContentType)
	}
}

// UnmarshalContent decodes a payload produced by MarshalContent.
func UnmarshalContent(data []byte) (Content, error) {
	var head struct {
		Type ContentType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	switch head.Type {
	case ContentTypeLink:
		var v LinkContent
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode link content: %w", err)
		}
		return Normalize(v), nil
	case ContentTypeImage:
		var v ImageContent
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode image content: %w", err)
		}
		return v, nil
	case ContentTypeText:
		var v TextContent
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode text content: %w", err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("decode content type %q: %w", head.Type, ErrUnknownContentType)
	}
}

// Entry pairs a cell id with its content. It serializes as a two element JSON
// array, [id, content], so ids never have to survive object-key coercion.
type Entry struct {
	ID      string
	Content Content
}

func (e Entry) MarshalJSON() ([]byte, error) {
	id, err := json.Marshal(e.ID)
	if err != nil {
		return nil, err
	}
	body, err := MarshalContent(e.Content)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(id)+len(body)+3)
	out = append(out, '[')
	out = append(out, id...)
	out = append(out, ',')
	out = append(out, body...)
	out = append(out, ']')
	return out, nil
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode entry: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decode entry: want [id, content], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.ID); err != nil {
		return fmt.Errorf("decode entry id: %w", err)
	}
	c, err := UnmarshalContent(pair[1])
	if err != nil {
		return err
	}
	e.Content = c
	return nil
}
