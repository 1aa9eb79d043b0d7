package cache

import (
	"context"
	"errors"
)

// Tiered combines a process-local L1 with a shared L2. Reads check L1 first,
// then L2, and promote L2 hits into L1. Writes populate both layers.
//
// An L2 failure never hides an L1 result: the L1 write is kept and the L2
// error is returned so the caller can log it.
type Tiered struct {
	l1 Cache
	l2 Cache
}

// NewTiered creates a two-level cache.
func NewTiered(l1, l2 Cache) (*Tiered, error) {
	if l1 == nil || l2 == nil {
		return nil, ErrNilCache
	}
	return &Tiered{l1: l1, l2: l2}, nil
}

// Get checks L1, then L2.
func (t *Tiered) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	v, ok, err := t.l1.Get(ctx, key)
	if err == nil && ok {
		return v, true, nil
	}

	v, ok, l2err := t.l2.Get(ctx, key)
	if l2err != nil || !ok {
		return nil, false, errors.Join(err, l2err)
	}

	// Promote to L1.
	_ = t.l1.Put(ctx, key, v)
	return v, true, nil
}

// Put writes the value to L1, then L2.
func (t *Tiered) Put(ctx context.Context, key Key, value []byte) error {
	return errors.Join(t.l1.Put(ctx, key, value), t.l2.Put(ctx, key, value))
}

// Delete removes key from both layers.
func (t *Tiered) Delete(ctx context.Context, key Key) error {
	return errors.Join(t.l1.Delete(ctx, key), t.l2.Delete(ctx, key))
}

// Ensure Tiered implements Cache
var _ Cache = (*Tiered)(nil)
