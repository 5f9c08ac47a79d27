package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// CachedResponse represents a cached API response
type CachedResponse struct {
	Response  string
	Timestamp time.Time
}

// Store is a concurrency-safe response cache
type Store struct {
	entries sync.Map
}

// New creates an empty cache
func New() *Store {
	return &Store{}
}

// Get returns the cached response for key
func (s *Store) Get(key string) (string, bool) {
	val, ok := s.entries.Load(key)
	if !ok {
		return "", false
	}
	return val.(CachedResponse).Response, true
}

// Put stores response under key
func (s *Store) Put(key, response string) {
	s.entries.Store(key, CachedResponse{
		Response:  response,
		Timestamp: time.Now(),
	})
}

// GenerateCacheKey generates a cache key from the ordered parts of a request
func GenerateCacheKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		// length prefix keeps ("ab","c") and ("a","bc") apart
		fmt.Fprintf(h, "%d:", len(p))
		h.Write([]byte(p))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
