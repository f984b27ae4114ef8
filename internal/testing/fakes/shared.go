package fakes

import (
	"context"
	"errors"
	"sync"

	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

// Audit collects audit entries.
type Audit struct {
	mu   sync.Mutex
	Logs []shared.AuditLog
	Err  error
}

// Record implements the services' audit port.
func (a *Audit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	a.Logs = append(a.Logs, log)
	return nil
}

// Entries returns a copy of the recorded logs.
func (a *Audit) Entries() []shared.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]shared.AuditLog(nil), a.Logs...)
}

type idemEntry struct {
	module string
	ref    string
}

// Idempotency is an in-memory shared.Idempotency.
type Idempotency struct {
	mu   sync.Mutex
	keys map[string]idemEntry

	// CompleteErr makes Complete fail without recording the ref.
	CompleteErr error
}

// NewIdempotency returns an empty store.
func NewIdempotency() *Idempotency {
	return &Idempotency{keys: make(map[string]idemEntry)}
}

var _ shared.Idempotency = (*Idempotency)(nil)

// CheckAndInsert implements shared.Idempotency.
func (i *Idempotency) CheckAndInsert(_ context.Context, key, module string) error {
	if key == "" || module == "" {
		return errors.New("fakes: key and module required")
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	i.keys[key] = idemEntry{module: module}
	return nil
}

// Complete implements shared.Idempotency.
func (i *Idempotency) Complete(_ context.Context, key, ref string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.CompleteErr != nil {
		return i.CompleteErr
	}
	entry, ok := i.keys[key]
	if !ok {
		return shared.ErrIdempotencyKeyUnknown
	}
	entry.ref = ref
	i.keys[key] = entry
	return nil
}

// Lookup implements shared.Idempotency.
func (i *Idempotency) Lookup(_ context.Context, key, module string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	entry, ok := i.keys[key]
	if !ok || entry.module != module {
		return "", shared.ErrIdempotencyKeyUnknown
	}
	return entry.ref, nil
}

// Delete implements shared.Idempotency.
func (i *Idempotency) Delete(_ context.Context, key string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.keys, key)
	return nil
}

// Ref returns the ref recorded for key.
func (i *Idempotency) Ref(key string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.keys[key].ref
}

// Len reports stored keys.
func (i *Idempotency) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.keys)
}
