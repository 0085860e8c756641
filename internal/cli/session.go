// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"maps"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeranaias/chatstream/internal/chat"
	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/locale"
	"github.com/jeranaias/chatstream/internal/storage"
	"github.com/jeranaias/chatstream/internal/transport"
	"github.com/jeranaias/chatstream/internal/visitor"
)

// session is the wiring one chat command needs: local store, visitor
// identity and a coordinator bound to one conversation.
type session struct {
	conversationID string
	store          storage.KV
	visitors       *visitor.Service
	coord          *chat.Coordinator
	logger         *zap.Logger

	closeStore func() error
}

// openStore opens the configured key-value store.
func openStore(cfg *config.Config) (storage.KV, func() error, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return storage.NewMemoryStore(), func() error { return nil }, nil
	case "sqlite", "":
		db, err := storage.OpenSQLite(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// archiveDir is where finished transcripts are kept, next to the state db.
func archiveDir(cfg *config.Config) string {
	if cfg.Storage.Path != "" {
		return filepath.Join(filepath.Dir(cfg.Storage.Path), "transcripts")
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return filepath.Join(".", "transcripts")
	}
	return filepath.Join(dir, "transcripts")
}

// requestParams merges the configured request fields into the params every
// turn carries.
func requestParams(cfg *config.Config, conversationID string) map[string]any {
	params := make(map[string]any, len(cfg.Request.Params)+3)
	maps.Copy(params, cfg.Request.Params)
	if cfg.Request.Mode != "" {
		params["mode"] = cfg.Request.Mode
	}
	if cfg.Request.Model != "" {
		params["model"] = cfg.Request.Model
	}
	params[chat.KeyConversationID] = conversationID
	return params
}

// newSession builds a session. conversationID overrides the configured one;
// when both are empty a fresh id is generated.
func (a *app) newSession(conversationID string) (*session, error) {
	cfg := a.cfg

	if conversationID == "" {
		conversationID = cfg.Request.ConversationID
	}
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	logger := a.logger.With(zap.String("conversation_id", conversationID))

	client := transport.NewClient(transport.Options{
		UserAgent:     cfg.Endpoint.UserAgent,
		OpenTimeout:   cfg.Stream.OpenTimeout(),
		IdleTimeout:   cfg.Stream.IdleTimeout(),
		MaxFrameBytes: cfg.Stream.MaxFrameBytes,
		Logger:        logger,
	})

	visitors := visitor.NewService(store)
	coord, err := chat.New(client, visitors, chat.Options{
		Endpoint: cfg.Endpoint.URL,
		Params:   requestParams(cfg, conversationID),
		Channel:  cfg.Endpoint.Channel,
		Catalog:  locale.For(cfg.Locale),
		Logger:   logger,
	})
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	return &session{
		conversationID: conversationID,
		store:          store,
		visitors:       visitors,
		coord:          coord,
		logger:         logger,
		closeStore:     closeStore,
	}, nil
}

// Close stops any running turn and releases the store.
func (s *session) Close() error {
	err := s.coord.Close()
	if cerr := s.closeStore(); err == nil {
		err = cerr
	}
	return err
}
