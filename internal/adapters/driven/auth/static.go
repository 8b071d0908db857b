// Package auth provides the capability-based authorizer and the API key
// ring that resolves boundary credentials into caller contexts.
package auth

import (
	"context"
	"sync"

	"github.com/custodia-labs/eventvault/internal/core/domain"
	"github.com/custodia-labs/eventvault/internal/core/ports/driven"
)

// Ensure Authorizer implements the interface.
var _ driven.Authorizer = (*Authorizer)(nil)

// Authorizer answers capability checks from the caller's capability
// bitfield. Credential verification happens at the boundary; by the time a
// Caller reaches the engine it is authenticated and this adapter only
// decides what it may do.
type Authorizer struct{}

// NewAuthorizer creates a capability authorizer.
func NewAuthorizer() *Authorizer {
	return &Authorizer{}
}

// Allowed implements driven.Authorizer.
func (a *Authorizer) Allowed(_ context.Context, caller domain.Caller, action driven.Action, _ *domain.Record) bool {
	switch action {
	case driven.ActionCreate:
		return caller.Capabilities.CanCreate()
	case driven.ActionUpdate:
		return caller.Capabilities.CanUpdate()
	default:
		return false
	}
}

// KeyRing maps API keys to caller identities.
type KeyRing struct {
	mu      sync.RWMutex
	callers map[string]domain.Caller
}

// NewKeyRing creates an empty key ring.
func NewKeyRing() *KeyRing {
	return &KeyRing{callers: make(map[string]domain.Caller)}
}

// Add registers a caller under an API key.
func (k *KeyRing) Add(key, subject string, caps domain.Capability) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.callers[key] = domain.Caller{Subject: subject, Capabilities: caps}
}

// Resolve returns the caller for an API key.
func (k *KeyRing) Resolve(key string) (domain.Caller, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	caller, ok := k.callers[key]
	return caller, ok
}

// ParseCapabilities decodes capability names ("create", "update") into a
// bitfield. Unknown names are ignored.
func ParseCapabilities(names []string) domain.Capability {
	caps := domain.CapNone
	for _, name := range names {
		switch name {
		case "create":
			caps |= domain.CapCreate
		case "update":
			caps |= domain.CapUpdate
		}
	}
	return caps
}
