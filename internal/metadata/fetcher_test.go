package metadata_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bento/internal/config"
	"bento/internal/metadata"
)

const page = `<!doctype html>
<html><head>
<title>  Plain Title </title>
<meta name="description" content="plain description">
<meta property="og:title" content="OG Title">
<meta name="twitter:image" content="/img/card.png">
</head><body><meta property="og:title" content="ignored"></body></html>`

func TestHTMLFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bento-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	f := &metadata.HTMLFetcher{Client: srv.Client(), UserAgent: "bento-test"}
	md, err := f.Fetch(context.Background(), srv.URL+"/profile")
	require.NoError(t, err)

	assert.Equal(t, "OG Title", md.Title)
	assert.Equal(t, "plain description", md.Description)
	assert.Equal(t, srv.URL+"/img/card.png", md.Image, "relative image resolves against the page")
}

func TestHTMLFetcher_FallsBackToTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Just a title</title></head></html>`)
	}))
	defer srv.Close()

	md, err := (&metadata.HTMLFetcher{Client: srv.Client()}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, metadata.Metadata{Title: "Just a title"}, md)
}

func TestHTMLFetcher_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{}`)
		case "/empty":
			fmt.Fprint(w, `<html><body>nothing here</body></html>`)
		}
	}))
	defer srv.Close()
	f := &metadata.HTMLFetcher{Client: srv.Client()}

	for _, path := range []string{"/missing", "/json", "/empty"} {
		_, err := f.Fetch(context.Background(), srv.URL+path)
		assert.Error(t, err, path)
	}
	_, err := f.Fetch(context.Background(), srv.URL+"/empty")
	assert.ErrorIs(t, err, metadata.ErrNoMetadata)

	_, err = f.Fetch(context.Background(), "ftp://example.com/file")
	assert.Error(t, err)
}

func TestHTMLFetcher_BodyIsCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><!--`)
		for i := 0; i < 1000; i++ {
			fmt.Fprint(w, "padding padding padding padding ")
		}
		fmt.Fprint(w, `--><title>too late</title></head></html>`)
	}))
	defer srv.Close()

	_, err := (&metadata.HTMLFetcher{Client: srv.Client(), MaxBodyBytes: 512}).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, metadata.ErrNoMetadata)
}

func TestServiceFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("url") != "https://example.com/a?b=c" {
			http.Error(w, "bad url", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"title": "Example", "description": "An example", "image": "https://example.com/i.png",
		})
	}))
	defer srv.Close()

	f := &metadata.ServiceFetcher{Endpoint: srv.URL + "/meta?key=1", Client: srv.Client()}
	md, err := f.Fetch(context.Background(), "https://example.com/a?b=c")
	require.NoError(t, err)
	assert.Equal(t, metadata.Metadata{Title: "Example", Description: "An example", Image: "https://example.com/i.png"}, md)

	_, err = f.Fetch(context.Background(), "https://other.example")
	assert.Error(t, err)
}

type countingFetcher struct {
	calls   atomic.Int32
	release chan struct{}
}

func (c *countingFetcher) Fetch(ctx context.Context, url string) (metadata.Metadata, error) {
	c.calls.Add(1)
	<-c.release
	return metadata.Metadata{Title: url}, nil
}

func TestDeduped_CollapsesConcurrentFetches(t *testing.T) {
	inner := &countingFetcher{release: make(chan struct{})}
	d := metadata.NewDeduped(inner)

	var wg sync.WaitGroup
	results := make([]metadata.Metadata, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = d.Fetch(context.Background(), "https://same.example")
		}(i)
	}
	require.Eventually(t, func() bool { return inner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(inner.release)
	wg.Wait()

	assert.Equal(t, int32(1), inner.calls.Load())
	for _, r := range results {
		assert.Equal(t, "https://same.example", r.Title)
	}
}

func TestDeduped_CallerCancel(t *testing.T) {
	inner := &countingFetcher{release: make(chan struct{})}
	defer close(inner.release)
	d := metadata.NewDeduped(inner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Fetch(ctx, "https://slow.example")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_PicksAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(metadata.Metadata{Title: "from service"})
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Metadata.Endpoint = srv.URL
	md, err := metadata.New(cfg, nil).Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "from service", md.Title)
}
