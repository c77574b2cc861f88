package hub

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"studiosync/internal/executor"
	"studiosync/internal/protocol"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultStaleAfter        = 60 * time.Second
	defaultSendTimeout       = 5 * time.Second
	defaultSendBuffer        = 64
	defaultMaxMessageBytes   = 1 << 20
)

// Config holds the hub collaborators and tunables.
type Config struct {
	// Dispatcher receives every inbound message. Required.
	Dispatcher *protocol.Dispatcher
	// Executor, when set, backs the tool_call handler and receives the hub
	// as its tool_result notifier.
	Executor *executor.Sequential
	Logger   *zerolog.Logger

	// HeartbeatInterval is the housekeeping tick: ping everyone, then evict
	// connections idle for longer than StaleAfter.
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
	// SendTimeout bounds a single outbound send or ping.
	SendTimeout time.Duration

	// WebSocket transport settings.
	SendBuffer      int
	MaxMessageBytes int64
	OriginPatterns  []string
	// DefaultGroups are joined by every new connection.
	DefaultGroups []string

	Now   func() time.Time
	NewID func() string
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaultStaleAfter
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = defaultMaxMessageBytes
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	return c
}
