// Package lock serializes check-then-write sequences per (tenant, staff), and per tenant or
// client when a cap spans several staff members.
package lock

import (
	"context"
	"sync"
	"time"
)

// Locker grants exclusive access to a key until unlock is called.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// StaffKey is the lock key for one staff member of one tenant.
func StaffKey(tenantID, staffID string) string {
	return "salonsched:lock:" + tenantID + ":" + staffID
}

// TenantKey guards the tenant-wide concurrent booking cap.
func TenantKey(tenantID string) string {
	return "salonsched:lock:" + tenantID
}

// ClientKey guards one client's daily and weekly caps.
func ClientKey(tenantID, clientID string) string {
	return "salonsched:lock:" + tenantID + ":client:" + clientID
}

// Scope is the set of keys a booking write holds. Keys are always taken in the order
// tenant, client, staff.
type Scope struct {
	TenantID   string
	StaffID    string
	ClientID   string // set when per-client caps apply
	TenantWide bool   // set when a tenant-wide cap applies
}

// Keys lists the scope's lock keys in acquisition order.
func (s Scope) Keys() []string {
	keys := make([]string, 0, 3)
	if s.TenantWide {
		keys = append(keys, TenantKey(s.TenantID))
	}
	if s.ClientID != "" {
		keys = append(keys, ClientKey(s.TenantID, s.ClientID))
	}
	return append(keys, StaffKey(s.TenantID, s.StaffID))
}

type entry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex is an in-process Locker. Entries are dropped once no goroutine holds or waits on them.
type KeyedMutex struct {
	mu   sync.Mutex
	keys map[string]*entry
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{keys: make(map[string]*entry)}
}

// Lock blocks until key is free or ctx is done.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.keys[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.keys[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.release(key, e)
		})
	}, nil
}

func (m *KeyedMutex) release(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.keys, key)
	}
}

// Len returns the number of tracked keys.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

// Acquire locks every key of scope in order and reports how long the caller waited.
// On failure the keys already held are released.
func Acquire(ctx context.Context, l Locker, scope Scope) (func(), time.Duration, error) {
	started := time.Now()
	keys := scope.Keys()
	held := make([]func(), 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, key := range keys {
		unlock, err := l.Lock(ctx, key)
		if err != nil {
			release()
			return nil, time.Since(started), err
		}
		held = append(held, unlock)
	}
	return release, time.Since(started), nil
}
