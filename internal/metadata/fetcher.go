// Package metadata resolves the title, description and preview image of a
// link. Any error means the link simply has no metadata.
package metadata

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"bento/internal/config"
)

// ErrNoMetadata is returned when a page was fetched but carried nothing usable.
var ErrNoMetadata = errors.New("no metadata")

// Metadata is what a link card shows besides its URL.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

// IsEmpty reports whether no field is set.
func (m Metadata) IsEmpty() bool {
	return m.Title == "" && m.Description == "" && m.Image == ""
}

// Fetcher resolves metadata for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Metadata, error)
}

// Deduped collapses concurrent fetches of the same URL into one request.
type Deduped struct {
	next  Fetcher
	group singleflight.Group
}

// NewDeduped wraps next.
func NewDeduped(next Fetcher) *Deduped {
	return &Deduped{next: next}
}

func (d *Deduped) Fetch(ctx context.Context, url string) (Metadata, error) {
	ch := d.group.DoChan(url, func() (any, error) {
		// Detached so one caller cancelling does not fail the others.
		return d.next.Fetch(context.WithoutCancel(ctx), url)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Metadata{}, res.Err
		}
		return res.Val.(Metadata), nil
	case <-ctx.Done():
		return Metadata{}, ctx.Err()
	}
}

// New returns the fetcher cfg describes: the remote service when an endpoint
// is configured, otherwise direct page scraping. Either way requests for the
// same URL are de-duplicated.
func New(cfg *config.Config, logger *zap.Logger) *Deduped {
	client := &http.Client{Timeout: cfg.GetMetadataTimeout()}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("metadata")

	var f Fetcher
	if cfg.Metadata.Endpoint != "" {
		logger.Info("using metadata service", zap.String("endpoint", cfg.Metadata.Endpoint))
		f = &ServiceFetcher{Endpoint: cfg.Metadata.Endpoint, Client: client, UserAgent: cfg.Metadata.UserAgent}
	} else {
		f = &HTMLFetcher{Client: client, UserAgent: cfg.Metadata.UserAgent, MaxBodyBytes: cfg.Metadata.MaxBodyBytes}
	}
	return NewDeduped(f)
}

const defaultTimeout = 10 * time.Second

func clientOr(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: defaultTimeout}
}
