package oem

import (
	"sync"
	"sync/atomic"
	"time"
)

// Store provides concurrent access to the current dataset. Readers never
// block; writers replace the dataset wholesale.
type Store struct {
	dataset atomic.Pointer[Dataset]
	mu      sync.Mutex // serializes refreshes
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current dataset, or nil if none has been loaded.
func (s *Store) Get() *Dataset {
	return s.dataset.Load()
}

// Set atomically replaces the current dataset.
func (s *Store) Set(ds *Dataset) {
	s.dataset.Store(ds)
}

// Ready reports whether a dataset has been loaded.
func (s *Store) Ready() bool {
	return s.dataset.Load() != nil
}

// AgeSeconds returns the age of the current dataset in seconds, or -1 if
// none is loaded.
func (s *Store) AgeSeconds() float64 {
	ds := s.dataset.Load()
	if ds == nil {
		return -1
	}
	return time.Since(ds.FetchedAt).Seconds()
}
