package headless

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedp(Config{MaxParallel: -1}); err == nil {
		t.Fatal("expected error for negative max parallel")
	}
	renderer, err := NewChromedp(Config{MaxParallel: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer renderer.Close()
	if cap(renderer.limiter) != 2 {
		t.Fatalf("expected limiter capacity 2, got %d", cap(renderer.limiter))
	}
	if renderer.cfg.NavigationTimeout != 45*time.Second {
		t.Fatalf("expected default nav timeout, got %v", renderer.cfg.NavigationTimeout)
	}
}

func TestResponseMetaCapturesDocumentStatus(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status: 204,
			URL:    "https://example.com/rendered",
		},
	})
	if got := meta.status(); got != 204 {
		t.Fatalf("unexpected status %d", got)
	}

	// Subresource responses must not overwrite the document status.
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeImage,
		Response: &network.Response{
			Status: 404,
		},
	})
	if got := meta.status(); got != 204 {
		t.Fatalf("subresource overwrote status: %d", got)
	}
}

func TestNoopRendererError(t *testing.T) {
	t.Parallel()

	renderer := NewNoop()
	if _, _, err := renderer.Render(context.Background(), "https://example.com"); err == nil {
		t.Fatal("expected error from noop renderer")
	}
}
