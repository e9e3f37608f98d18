package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

const defaultMaxBody = 1 << 20

// HTMLFetcher GETs the page itself and reads Open Graph, Twitter card and
// plain HTML tags from its head.
type HTMLFetcher struct {
	Client       *http.Client
	UserAgent    string
	MaxBodyBytes int64
}

func (f *HTMLFetcher) Fetch(ctx context.Context, rawURL string) (Metadata, error) {
	base, err := url.Parse(rawURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return Metadata{}, fmt.Errorf("unsupported url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("create request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := clientOr(f.Client).Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return Metadata{}, fmt.Errorf("fetch %s: not html (%s): %w", rawURL, ct, ErrNoMetadata)
	}

	limit := f.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBody
	}
	doc, err := html.Parse(io.LimitReader(resp.Body, limit))
	if err != nil {
		return Metadata{}, fmt.Errorf("parse %s: %w", rawURL, err)
	}

	// Redirects change the base relative image URLs resolve against.
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL
	}
	md := extract(doc, base)
	if md.IsEmpty() {
		return Metadata{}, ErrNoMetadata
	}
	return md, nil
}

// extract walks the document once. Open Graph wins over Twitter cards, which
// win over <title> and meta description.
func extract(doc *html.Node, base *url.URL) Metadata {
	tags := map[string]string{}
	var title string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				key := strings.ToLower(attr(n, "property"))
				if key == "" {
					key = strings.ToLower(attr(n, "name"))
				}
				if content := strings.TrimSpace(attr(n, "content")); key != "" && content != "" {
					if _, seen := tags[key]; !seen {
						tags[key] = content
					}
				}
			case "title":
				if title == "" {
					title = strings.TrimSpace(textOf(n))
				}
			case "body":
				// Metadata lives in the head.
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	md := Metadata{
		Title:       first(tags["og:title"], tags["twitter:title"], title),
		Description: first(tags["og:description"], tags["twitter:description"], tags["description"]),
		Image:       first(tags["og:image"], tags["og:image:url"], tags["twitter:image"], tags["twitter:image:src"]),
	}
	if md.Image != "" {
		if ref, err := url.Parse(md.Image); err == nil {
			md.Image = base.ResolveReference(ref).String()
		}
	}
	return md
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
