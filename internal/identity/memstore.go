package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Compile-time assertion that MemDirectory satisfies the Directory interface.
var _ Directory = (*MemDirectory)(nil)

// MemDirectory is a thread-safe, in-memory implementation of [Directory].
// It is suitable for tests and deployments without a database.
type MemDirectory struct {
	mu     sync.RWMutex
	byLbl  map[string]Identity
	byUser map[string]string // user ID → label
}

// NewMemDirectory returns an initialised [MemDirectory].
func NewMemDirectory() *MemDirectory {
	return &MemDirectory{
		byLbl:  make(map[string]Identity),
		byUser: make(map[string]string),
	}
}

// Bind implements [Directory.Bind].
func (d *MemDirectory) Bind(ctx context.Context, ident *Identity) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.byLbl[ident.Label]; exists {
		return fmt.Errorf("identity: label %q: %w", ident.Label, ErrAlreadyBound)
	}
	if lbl, exists := d.byUser[ident.UserID]; exists {
		return fmt.Errorf("identity: user %q holds label %q: %w", ident.UserID, lbl, ErrAlreadyBound)
	}
	if ident.BoundAt.IsZero() {
		ident.BoundAt = time.Now()
	}
	d.byLbl[ident.Label] = *ident
	d.byUser[ident.UserID] = ident.Label
	return nil
}

// Get implements [Directory.Get].
func (d *MemDirectory) Get(ctx context.Context, label string) (*Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ident, ok := d.byLbl[label]
	if !ok {
		return nil, nil
	}
	return &ident, nil
}

// GetByUser implements [Directory.GetByUser].
func (d *MemDirectory) GetByUser(ctx context.Context, userID string) (*Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	lbl, ok := d.byUser[userID]
	if !ok {
		return nil, nil
	}
	ident := d.byLbl[lbl]
	return &ident, nil
}

// Unbind implements [Directory.Unbind].
func (d *MemDirectory) Unbind(ctx context.Context, label string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ident, ok := d.byLbl[label]
	if !ok {
		return nil
	}
	delete(d.byLbl, label)
	delete(d.byUser, ident.UserID)
	return nil
}

// List implements [Directory.List].
func (d *MemDirectory) List(ctx context.Context) ([]Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Identity, 0, len(d.byLbl))
	for _, ident := range d.byLbl {
		out = append(out, ident)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}
