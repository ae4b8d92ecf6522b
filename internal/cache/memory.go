package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type Memory[V any] struct {
	lru *expirable.LRU[string, V]
}

func NewMemory[V any](size int, ttl time.Duration) *Memory[V] {
	return &Memory[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

func (m *Memory[V]) Get(_ context.Context, key string) (V, bool) {
	return m.lru.Get(key)
}

func (m *Memory[V]) Set(_ context.Context, key string, value V) {
	m.lru.Add(key, value)
}

func (m *Memory[V]) Len() int {
	return m.lru.Len()
}
