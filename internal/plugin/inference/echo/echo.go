package echo

import (
	"context"
	"fmt"

	registryinference "github.com/chatstack/chat-service/internal/registry/inference"
)

func init() {
	registryinference.Register(registryinference.Plugin{
		Name: "echo",
		Loader: func(ctx context.Context) (registryinference.Client, error) {
			return &Client{}, nil
		},
	})
}

// Client is a deterministic local inference client. It needs no upstream and
// is selected by the serve tests and in local dev.
type Client struct{}

func (c *Client) ModelName() string {
	return "echo"
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return fmt.Sprintf("echo: %s", prompt), nil
}

var _ registryinference.Client = (*Client)(nil)
