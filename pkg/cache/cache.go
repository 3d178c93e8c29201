// Package cache holds finalized responses keyed by response ID. It is
// consulted and populated only after a stream reaches response.completed,
// never mid-stream, and is safe for concurrent completions: the last write
// wins and is observed by subsequent reads.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/meklund/restitch/pkg/datatypes/responses"
)

type Store interface {
	Store(key string, response *responses.Response)
	Retrieve(key string) (*responses.Response, bool)
}

// NewLRU returns a bounded in-memory store evicting least recently used
// entries once size is exceeded.
func NewLRU(size int) (Store, error) {
	inner, err := lru.New[string, *responses.Response](size)
	if err != nil {
		return nil, err
	}
	return &lruStore{inner: inner}, nil
}

type lruStore struct {
	inner *lru.Cache[string, *responses.Response]
}

func (s *lruStore) Store(key string, response *responses.Response) {
	s.inner.Add(key, response)
}

func (s *lruStore) Retrieve(key string) (*responses.Response, bool) {
	return s.inner.Get(key)
}

// NopStore never retains anything, for deployments that disable caching.
func NopStore() Store {
	return nopStore{}
}

type nopStore struct{}

func (nopStore) Store(string, *responses.Response)           {}
func (nopStore) Retrieve(string) (*responses.Response, bool) { return nil, false }
