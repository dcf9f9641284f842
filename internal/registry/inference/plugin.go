package inference

import (
	"context"
	"fmt"
)

// Client generates a model reply for a single prompt.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
	ModelName() string
}

// UpstreamError indicates the inference endpoint returned a failure or an
// unusable response. StatusCode is the upstream HTTP status, or 0 when the
// request never completed.
type UpstreamError struct {
	StatusCode int
	Detail     string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("inference upstream returned %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("inference request failed: %s", e.Detail)
}

// Loader creates a Client from config.
type Loader func(ctx context.Context) (Client, error)

// Plugin represents an inference plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds an inference plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered inference plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named inference plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown inference client %q; valid: %v", name, Names())
}
