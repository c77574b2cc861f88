package httpapi

import (
	"context"
	"testing"
	"time"
)

func TestOptionsWithDefaults(t *testing.T) {
	o := Options{MaxBodyBytes: -1}.withDefaults()
	if o.MaxBodyBytes != 1<<20 {
		t.Fatalf("expected default 1MiB, got %d", o.MaxBodyBytes)
	}
	if o.BaseContext == nil || o.BaseContext.Err() != nil {
		t.Fatalf("expected a live background base context")
	}
	if len(o.CORSMethods) == 0 || len(o.CORSHeaders) == 0 {
		t.Fatalf("expected default CORS methods and headers: %+v", o)
	}

	origins := []string{"http://studio.local"}
	o = Options{MaxBodyBytes: 1234, CORSOrigins: origins}.withDefaults()
	origins[0] = "mutated"
	if o.MaxBodyBytes != 1234 || o.CORSOrigins[0] != "http://studio.local" {
		t.Fatalf("unexpected options: %+v", o)
	}
}

func TestWithShutdown_EndsWhenEitherEnds(t *testing.T) {
	for _, first := range []string{"base", "request"} {
		base, bc := context.WithCancel(context.Background())
		req, rc := context.WithCancel(context.Background())
		ctx, cancel := withShutdown(base, req)
		if first == "base" {
			bc()
		} else {
			rc()
		}
		select {
		case <-ctx.Done():
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("derived context did not end when %s ended", first)
		}
		cancel()
		bc()
		rc()
	}
}

func TestWithShutdown_KeepsRequestValues(t *testing.T) {
	type key struct{}
	req := context.WithValue(context.Background(), key{}, "req-1")
	ctx, cancel := withShutdown(context.Background(), req)
	defer cancel()
	if ctx.Value(key{}) != "req-1" {
		t.Fatalf("request values lost")
	}
	cancel()
	if ctx.Err() == nil {
		t.Fatalf("expected cancel to end the context")
	}
}
