// Package childctx looks up the child/custody context needed to build a
// payload. The engine treats it as an external collaborator.
package childctx

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	stderrors "crisis-routing/internal/common/errors"
)

// Context is the minimal child data the payload builder may see.
type Context struct {
	Age              int  `json:"age"`
	HasSharedCustody bool `json:"hasSharedCustody"`
}

// Provider resolves a childId to its routing context. An unresolvable age is
// a precondition failure, not an internal error.
type Provider interface {
	Lookup(ctx context.Context, childID string) (*Context, error)
}

// PostgresProvider reads child profiles from the shared store.
type PostgresProvider struct {
	db *sql.DB
}

func NewPostgresProvider(db *sql.DB) *PostgresProvider {
	return &PostgresProvider{db: db}
}

func (p *PostgresProvider) Lookup(ctx context.Context, childID string) (*Context, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT age, has_shared_custody FROM child_profiles WHERE id = $1`, childID)

	var age sql.NullInt64
	var hasSharedCustody bool
	err := row.Scan(&age, &hasSharedCustody)
	if err == sql.ErrNoRows {
		return nil, stderrors.NewChildAgeUnresolvableError(fmt.Sprintf("childId: %s not found", childID))
	}
	if err != nil {
		return nil, fmt.Errorf("lookup child context: %w", err)
	}
	if !age.Valid {
		return nil, stderrors.NewChildAgeUnresolvableError(fmt.Sprintf("childId: %s has no age on record", childID))
	}

	return &Context{
		Age:              int(age.Int64),
		HasSharedCustody: hasSharedCustody,
	}, nil
}

// TimeoutProvider bounds every lookup with a fixed deadline so a hung profile
// store cannot stall the routing flow.
type TimeoutProvider struct {
	inner   Provider
	timeout time.Duration
}

func NewTimeoutProvider(inner Provider, timeout time.Duration) *TimeoutProvider {
	return &TimeoutProvider{inner: inner, timeout: timeout}
}

func (p *TimeoutProvider) Lookup(ctx context.Context, childID string) (*Context, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.inner.Lookup(ctx, childID)
}

// MemoryProvider is a fixed-map provider for tests.
type MemoryProvider struct {
	mu       sync.RWMutex
	children map[string]Context
}

func NewMemoryProvider(children map[string]Context) *MemoryProvider {
	if children == nil {
		children = make(map[string]Context)
	}
	return &MemoryProvider{children: children}
}

func (p *MemoryProvider) Lookup(_ context.Context, childID string) (*Context, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	child, ok := p.children[childID]
	if !ok {
		return nil, stderrors.NewChildAgeUnresolvableError(fmt.Sprintf("childId: %s not found", childID))
	}
	return &child, nil
}
