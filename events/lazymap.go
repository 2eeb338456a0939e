// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

import "sync"

// A lazyMap computes the value of each key at most once, on first use, and
// remembers errors as well as values. It is safe for concurrent use.
type lazyMap[K comparable, V any] struct {
	load func(K) (V, error)

	mu      sync.Mutex
	entries map[K]func() (V, error)
}

func newLazyMap[K comparable, V any](load func(K) (V, error)) *lazyMap[K, V] {
	return &lazyMap[K, V]{load: load, entries: make(map[K]func() (V, error))}
}

func (m *lazyMap[K, V]) get(key K) (V, error) {
	m.mu.Lock()
	f, ok := m.entries[key]
	if !ok {
		f = sync.OnceValues(func() (V, error) { return m.load(key) })
		m.entries[key] = f
	}
	m.mu.Unlock()
	return f()
}
