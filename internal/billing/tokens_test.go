package billing_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"billgate/internal/billing"
	"billgate/internal/config"
)

func newTestTokenCache(t *testing.T, backend *fakeBackend) *billing.TokenCache {
	t.Helper()

	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := billing.NewClient(config.BillingConfig{
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
	}, log)
	return billing.NewTokenCache(client, log)
}

func TestTokenCache_HitSkipsLogin(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	cache := newTestTokenCache(t, backend)

	first, err := cache.Get(context.Background(), "5551234567")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	second, err := cache.Get(context.Background(), "5551234567")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if first != second {
		t.Errorf("cached token %q differs from first token %q", second, first)
	}
	if calls := atomic.LoadInt32(&backend.loginCalls); calls != 1 {
		t.Errorf("login called %d times, want 1", calls)
	}
}

func TestTokenCache_DistinctIdentities(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	cache := newTestTokenCache(t, backend)

	a, err := cache.Get(context.Background(), "5551111111")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	b, err := cache.Get(context.Background(), "5552222222")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if a == b {
		t.Error("distinct identities share a token")
	}
	if cache.Size() != 2 {
		t.Errorf("Size() = %d, want 2", cache.Size())
	}
}

func TestTokenCache_FailedLoginNotCached(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	backend.loginStatus = http.StatusUnauthorized
	cache := newTestTokenCache(t, backend)

	if _, err := cache.Get(context.Background(), "5551234567"); err == nil {
		t.Fatal("Get() succeeded against a rejecting backend")
	}
	if cache.Size() != 0 {
		t.Errorf("Size() = %d after failed login, want 0", cache.Size())
	}

	// A later attempt retries the backend once it recovers.
	backend.loginStatus = http.StatusOK
	if _, err := cache.Get(context.Background(), "5551234567"); err != nil {
		t.Fatalf("Get() after recovery error = %v", err)
	}
	if calls := atomic.LoadInt32(&backend.loginCalls); calls != 2 {
		t.Errorf("login called %d times, want 2", calls)
	}
}

func TestTokenCache_ConcurrentGet(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	cache := newTestTokenCache(t, backend)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := cache.Get(context.Background(), "5551234567")
			if err != nil {
				t.Errorf("Get() error = %v", err)
			}
			if token == "" {
				t.Error("Get() returned empty token")
			}
		}()
	}
	wg.Wait()

	if cache.Size() != 1 {
		t.Errorf("Size() = %d, want 1", cache.Size())
	}
}
