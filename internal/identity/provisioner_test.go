package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chatstack/chat-service/internal/plugin/store/memory"
	"github.com/chatstack/chat-service/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{seen: map[string]bool{}}
}

func (f *fakeCache) Available() bool { return true }

func (f *fakeCache) Seen(_ context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[userID], nil
}

func (f *fakeCache) MarkSeen(_ context.Context, userID string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[userID] = true
	return nil
}

func TestEnsureProvisioned_CreatesUser(t *testing.T) {
	store := memory.New()
	p := NewProvisioner(store, newFakeCache(), time.Minute)

	p.EnsureProvisioned(context.Background(), security.Identity{
		UserID: "user1",
		Email:  "a@example.com",
		Name:   "Alice",
	})

	user, ok := store.GetUser("user1")
	require.True(t, ok)
	require.NotNil(t, user.Email)
	assert.Equal(t, "a@example.com", *user.Email)
	require.NotNil(t, user.Name)
	assert.Equal(t, "Alice", *user.Name)
}

func TestEnsureProvisioned_CacheThrottlesWrites(t *testing.T) {
	store := memory.New()
	cache := newFakeCache()
	p := NewProvisioner(store, cache, time.Minute)
	ctx := context.Background()

	p.EnsureProvisioned(ctx, security.Identity{UserID: "user1"})
	first, ok := store.GetUser("user1")
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	p.EnsureProvisioned(ctx, security.Identity{UserID: "user1"})
	second, _ := store.GetUser("user1")

	// The second call hit the cache, so lastActiveAt was not refreshed.
	assert.Equal(t, *first.LastActiveAt, *second.LastActiveAt)
}

func TestEnsureProvisioned_EmptyUserIDIgnored(t *testing.T) {
	store := memory.New()
	p := NewProvisioner(store, newFakeCache(), time.Minute)

	p.EnsureProvisioned(context.Background(), security.Identity{})

	_, ok := store.GetUser("")
	assert.False(t, ok)
}
