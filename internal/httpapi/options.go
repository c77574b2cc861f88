package httpapi

import "context"

const defaultMaxBodyBytes int64 = 1 << 20

// Options tune the HTTP surface. The zero value is usable.
type Options struct {
	// MaxBodyBytes caps POST /models/{id} bodies. Non-positive means 1 MiB.
	MaxBodyBytes int64
	// CORSOrigins turns CORS on for the listed origins; empty leaves it off.
	CORSOrigins []string
	CORSMethods []string
	CORSHeaders []string
	// BaseContext ends on shutdown. Model updates in flight end with it.
	BaseContext context.Context
}

func (o Options) withDefaults() Options {
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = defaultMaxBodyBytes
	}
	if len(o.CORSMethods) == 0 {
		o.CORSMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(o.CORSHeaders) == 0 {
		o.CORSHeaders = []string{"Content-Type", "X-Request-Id", "X-Log-Level"}
	}
	if o.BaseContext == nil {
		o.BaseContext = context.Background()
	}
	o.CORSOrigins = append([]string(nil), o.CORSOrigins...)
	return o
}

// withShutdown derives from the request context and also ends when base
// does. The returned cancel must be called when the handler returns.
func withShutdown(base, req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(req)
	stop := context.AfterFunc(base, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
