package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// ServiceFetcher asks a remote metadata service: GET <Endpoint>?url=<u>,
// answered with {"title","description","image"}.
type ServiceFetcher struct {
	Endpoint  string
	Client    *http.Client
	UserAgent string
}

func (f *ServiceFetcher) Fetch(ctx context.Context, rawURL string) (Metadata, error) {
	endpoint, err := url.Parse(f.Endpoint)
	if err != nil {
		return Metadata{}, fmt.Errorf("parse endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("url", rawURL)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := clientOr(f.Client).Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("query metadata service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("query metadata service: HTTP %d", resp.StatusCode)
	}

	var md Metadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, defaultMaxBody)).Decode(&md); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	if md.IsEmpty() {
		return Metadata{}, ErrNoMetadata
	}
	return md, nil
}
