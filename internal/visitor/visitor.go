// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package visitor hands out the opaque identifier that tags every outbound
// chat request from this profile. The identifier is created on first use,
// persisted in the local store and never rotated.
package visitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jeranaias/chatstream/internal/storage"
)

// StorageKey is the local store key the identifier lives under.
const StorageKey = "chatstream.visitor_id"

// Provider returns the visitor identifier, creating it if needed.
type Provider interface {
	GetOrCreate(ctx context.Context) (string, error)
}

// =============================================================================
// SERVICE
// =============================================================================

// Service is the persisted Provider. Construct one per process and inject
// it into whatever needs the identifier.
type Service struct {
	store storage.KV

	mu     sync.Mutex
	cached string
	newID  func() string
}

// NewService creates a Service backed by store.
func NewService(store storage.KV) *Service {
	return &Service{
		store: store,
		newID: uuid.NewString,
	}
}

// GetOrCreate returns the cached identifier, else the persisted one, else a
// freshly generated one that is persisted before it is returned.
func (s *Service) GetOrCreate(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" {
		return s.cached, nil
	}

	id, err := s.store.Get(ctx, StorageKey)
	switch {
	case err == nil && id != "":
		s.cached = id
		return id, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return "", fmt.Errorf("visitor: read identifier: %w", err)
	}

	id = s.newID()
	if err := s.store.Set(ctx, StorageKey, id); err != nil {
		return "", fmt.Errorf("visitor: persist identifier: %w", err)
	}
	s.cached = id
	return id, nil
}

// Reset forgets the identifier so the next GetOrCreate generates a new one.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(ctx, StorageKey); err != nil {
		return fmt.Errorf("visitor: delete identifier: %w", err)
	}
	s.cached = ""
	return nil
}

// =============================================================================
// STATIC PROVIDER
// =============================================================================

// Static is a Provider that always returns the same identifier.
type Static string

// GetOrCreate implements Provider.
func (s Static) GetOrCreate(context.Context) (string, error) {
	return string(s), nil
}
