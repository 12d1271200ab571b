package imagefetch

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// maxCachedPayloadBytes keeps single large downloads from evicting the rest
// of the cache.
const maxCachedPayloadBytes = 4 << 20

// Source is anything that can fetch a URL. *Fetcher implements it.
type Source interface {
	Fetch(ctx context.Context, rawURL string) (*Payload, error)
}

// CachingFetcher memoizes successful downloads by URL and collapses
// concurrent requests for the same URL into one upstream call. Only use it for
// immutable resources such as finished images; job-status pages change.
type CachingFetcher struct {
	next  Source
	cache *lru.Cache[string, *Payload]
	sf    singleflight.Group
}

// NewCaching wraps next with an LRU of the given number of entries.
func NewCaching(next Source, entries int) (*CachingFetcher, error) {
	cache, err := lru.New[string, *Payload](entries)
	if err != nil {
		return nil, fmt.Errorf("imagefetch: new cache: %w", err)
	}
	return &CachingFetcher{next: next, cache: cache}, nil
}

func (c *CachingFetcher) Fetch(ctx context.Context, rawURL string) (*Payload, error) {
	if p, ok := c.cache.Get(rawURL); ok {
		return p, nil
	}
	// The shared download must not die with whichever caller started it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.sf.Do(rawURL, func() (any, error) {
		p, err := c.next.Fetch(shared, rawURL)
		if err != nil {
			return nil, err
		}
		if len(p.Data) <= maxCachedPayloadBytes {
			c.cache.Add(rawURL, p)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	p, ok := v.(*Payload)
	if !ok {
		return nil, fmt.Errorf("imagefetch: singleflight returned unexpected type %T", v)
	}
	return p, nil
}

// Len reports the number of cached payloads.
func (c *CachingFetcher) Len() int {
	return c.cache.Len()
}
