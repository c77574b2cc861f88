package executor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultConcurrency   = 1
	defaultNotifyTimeout = 5 * time.Second
)

// Config encapsulates the tunables for a Sequential executor.
type Config struct {
	// Concurrency bounds how many calls run at once. Values below 1 mean 1.
	Concurrency int
	// NotifyTimeout bounds the tool_result push to the origin connection.
	NotifyTimeout time.Duration
	// BaseContext is the parent of every tool context. Defaults to Background.
	BaseContext context.Context
	Logger      *zerolog.Logger
	Publisher   EventPublisher
	Tools       *ToolRegistry
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = defaultConcurrency
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = defaultNotifyTimeout
	}
	if c.BaseContext == nil {
		c.BaseContext = context.Background()
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	if c.Publisher == nil {
		c.Publisher = noopPublisher{}
	}
	if c.Tools == nil {
		c.Tools = NewToolRegistry()
	}
	return c
}
