package noop

import (
	"context"
	"time"

	"github.com/chatstack/chat-service/internal/registry/cache"
)

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (cache.ProvisionCache, error) {
			return &noopProvisionCache{}, nil
		},
	})
}

type noopProvisionCache struct{}

func (n *noopProvisionCache) Available() bool { return false }
func (n *noopProvisionCache) Seen(_ context.Context, _ string) (bool, error) {
	return false, nil
}
func (n *noopProvisionCache) MarkSeen(_ context.Context, _ string, _ time.Duration) error {
	return nil
}

var _ cache.ProvisionCache = (*noopProvisionCache)(nil)
