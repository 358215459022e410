package service

import "sync"

// SKULocker serializes quantity-affecting work per SKU. Ledger adjustments
// and distribution passes against the same SKU take the same lock, so a
// distribution never reads a total mid-adjustment. Locks are created on
// first use and kept for the life of the process.
type SKULocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSKULocker() *SKULocker {
	return &SKULocker{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for one SKU, creating it on first use.
func (l *SKULocker) Lock(sku string) {
	l.mu.Lock()
	m, ok := l.locks[sku]
	if !ok {
		m = &sync.Mutex{}
		l.locks[sku] = m
	}
	l.mu.Unlock()
	m.Lock()
}

// Unlock releases the mutex for one SKU.
func (l *SKULocker) Unlock(sku string) {
	l.mu.Lock()
	m, ok := l.locks[sku]
	l.mu.Unlock()
	if ok {
		m.Unlock()
	}
}
