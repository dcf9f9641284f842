package identity

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chatstack/chat-service/internal/model"
	registrycache "github.com/chatstack/chat-service/internal/registry/cache"
	registrystore "github.com/chatstack/chat-service/internal/registry/store"
	"github.com/chatstack/chat-service/internal/security"
)

// Provisioner lazily materializes user records from resolved identities. Every
// authenticated request flows through EnsureProvisioned; the cache keeps that
// from becoming a datastore write per request.
type Provisioner struct {
	store registrystore.ConversationStore
	cache registrycache.ProvisionCache
	ttl   time.Duration
}

// NewProvisioner creates a Provisioner. cache may be a noop cache; ttl bounds
// how stale a user's lastActiveAt can get.
func NewProvisioner(store registrystore.ConversationStore, cache registrycache.ProvisionCache, ttl time.Duration) *Provisioner {
	return &Provisioner{store: store, cache: cache, ttl: ttl}
}

// EnsureProvisioned upserts the user record for the identity. Best-effort:
// failures are logged and swallowed so a datastore hiccup never rejects an
// otherwise valid request.
func (p *Provisioner) EnsureProvisioned(ctx context.Context, id security.Identity) {
	if id.UserID == "" {
		return
	}

	if p.cache.Available() {
		seen, err := p.cache.Seen(ctx, id.UserID)
		if err != nil {
			log.Warn("Provision cache lookup failed", "userId", id.UserID, "err", err)
		} else if seen {
			return
		}
	}

	user := model.User{ID: id.UserID}
	if id.Email != "" {
		user.Email = &id.Email
	}
	if id.Name != "" {
		user.Name = &id.Name
	}
	created, err := p.store.EnsureUser(ctx, user)
	if err != nil {
		log.Warn("User provisioning failed", "userId", id.UserID, "err", err)
		return
	}
	if created {
		log.Info("Provisioned new user", "userId", id.UserID)
	}

	if p.cache.Available() {
		if err := p.cache.MarkSeen(ctx, id.UserID, p.ttl); err != nil {
			log.Warn("Provision cache mark failed", "userId", id.UserID, "err", err)
		}
	}
}
