package billing_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"billgate/internal/billing"
	"billgate/internal/config"
	"billgate/internal/intent"
)

// fakeBackend is a configurable stand-in for the billing backend API.
type fakeBackend struct {
	t *testing.T

	loginStatus  int
	billStatus   int
	billBody     string
	detailStatus int
	detailBody   string
	payStatus    int
	payBody      string

	loginCalls int32
	billCalls  int32
	payCalls   int32
}

func newFakeBackend(t *testing.T) *fakeBackend {
	return &fakeBackend{
		t:            t,
		loginStatus:  http.StatusOK,
		billStatus:   http.StatusOK,
		billBody:     `{}`,
		detailStatus: http.StatusOK,
		detailBody:   `{}`,
		payStatus:    http.StatusOK,
		payBody:      `{}`,
	}
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/Auth/login":
		atomic.AddInt32(&f.loginCalls, 1)
		if f.loginStatus != http.StatusOK {
			w.WriteHeader(f.loginStatus)
			return
		}
		var body struct {
			PhoneNumber string `json:"phoneNumber"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-" + body.PhoneNumber})
	case "/Subscriber/bills":
		atomic.AddInt32(&f.billCalls, 1)
		if r.Header.Get("Authorization") == "" {
			f.t.Error("bill fetch missing Authorization header")
		}
		w.WriteHeader(f.billStatus)
		_, _ = io.WriteString(w, f.billBody)
	case "/Subscriber/bills/detailed":
		w.WriteHeader(f.detailStatus)
		_, _ = io.WriteString(w, f.detailBody)
	case "/Payment/pay":
		atomic.AddInt32(&f.payCalls, 1)
		w.WriteHeader(f.payStatus)
		_, _ = io.WriteString(w, f.payBody)
	default:
		f.t.Errorf("unexpected backend path %s", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func newDispatcher(t *testing.T, backend *fakeBackend) *billing.Dispatcher {
	t.Helper()

	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := billing.NewClient(config.BillingConfig{
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
	}, log)
	return billing.NewDispatcher(client, billing.NewTokenCache(client, log), log)
}

func queryIntent(period string) intent.Intent {
	return intent.Intent{
		Kind:     intent.KindQueryBill,
		Identity: "5551234567",
		Period:   period,
		Page:     1,
		PageSize: 10,
	}
}

func TestDispatch_QueryBill(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		billBody string
		want     billing.BillStatement
	}{
		{
			name:     "top level fields",
			billBody: `{"billTotal": 150, "isPaid": false}`,
			want:     billing.BillStatement{Account: "5551234567", Period: "2024-10", Amount: 150, Paid: false},
		},
		{
			name:     "aggregate total wins over itemized list",
			billBody: `{"billTotal": 300, "bills": [{"month": "2024-10", "amount": 120, "isPaid": true}]}`,
			want:     billing.BillStatement{Account: "5551234567", Period: "2024-10", Amount: 300, Paid: true},
		},
		{
			name:     "amount field when no aggregate",
			billBody: `{"amount": 95.5}`,
			want:     billing.BillStatement{Account: "5551234567", Period: "2024-10", Amount: 95.5, Paid: false},
		},
		{
			name:     "itemized entry when no top level amounts",
			billBody: `{"bills": [{"month": "2024-09", "amount": 80, "isPaid": true}]}`,
			want:     billing.BillStatement{Account: "5551234567", Period: "2024-09", Amount: 80, Paid: true},
		},
		{
			name:     "empty response yields zero unpaid",
			billBody: `{}`,
			want:     billing.BillStatement{Account: "5551234567", Period: "2024-10", Amount: 0, Paid: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			backend := newFakeBackend(t)
			backend.billBody = tt.billBody
			d := newDispatcher(t, backend)

			got := d.Dispatch(context.Background(), queryIntent("2024-10"))
			statement, ok := got.(billing.BillStatement)
			if !ok {
				t.Fatalf("Dispatch() = %T (%+v), want BillStatement", got, got)
			}
			if statement != tt.want {
				t.Errorf("Dispatch() = %+v, want %+v", statement, tt.want)
			}
		})
	}
}

func TestDispatch_QueryBillRateLimited(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	backend.billStatus = http.StatusTooManyRequests
	d := newDispatcher(t, backend)

	got := d.Dispatch(context.Background(), queryIntent("2024-10"))
	failure, ok := got.(billing.Failure)
	if !ok {
		t.Fatalf("Dispatch() = %T, want Failure", got)
	}
	if failure.Kind != billing.FailureRateLimited {
		t.Errorf("failure kind = %s, want %s", failure.Kind, billing.FailureRateLimited)
	}
	if failure.Detail == "" {
		t.Error("rate limit failure missing advisory detail")
	}
}

func TestDispatch_AuthFailureSkipsBackend(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	backend.loginStatus = http.StatusUnauthorized
	d := newDispatcher(t, backend)

	got := d.Dispatch(context.Background(), queryIntent("2024-10"))
	failure, ok := got.(billing.Failure)
	if !ok {
		t.Fatalf("Dispatch() = %T, want Failure", got)
	}
	if failure.Kind != billing.FailureAuth {
		t.Errorf("failure kind = %s, want %s", failure.Kind, billing.FailureAuth)
	}
	if atomic.LoadInt32(&backend.billCalls) != 0 {
		t.Error("bill endpoint was called despite missing token")
	}
}

func TestDispatch_QueryBillDetailed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		detailBody string
		wantItems  int
		wantTotal  int
		wantEmpty  bool
	}{
		{
			name:       "bills field with server total",
			detailBody: `{"bills": [{"month": "2024-09", "amount": 80}, {"month": "2024-10", "amount": 90}], "totalCount": 12}`,
			wantItems:  2,
			wantTotal:  12,
		},
		{
			name:       "items field without server total",
			detailBody: `{"items": [{"month": "2024-09", "amount": 80}]}`,
			wantItems:  1,
			wantTotal:  1,
		},
		{
			name:       "empty listing",
			detailBody: `{"bills": []}`,
			wantEmpty:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			backend := newFakeBackend(t)
			backend.detailBody = tt.detailBody
			d := newDispatcher(t, backend)

			it := queryIntent("2024-10")
			it.Kind = intent.KindQueryBillDetailed
			got := d.Dispatch(context.Background(), it)

			if tt.wantEmpty {
				if _, ok := got.(billing.EmptyList); !ok {
					t.Fatalf("Dispatch() = %T, want EmptyList", got)
				}
				return
			}

			list, ok := got.(billing.BillList)
			if !ok {
				t.Fatalf("Dispatch() = %T (%+v), want BillList", got, got)
			}
			if len(list.Items) != tt.wantItems {
				t.Errorf("got %d items, want %d", len(list.Items), tt.wantItems)
			}
			if list.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", list.Total, tt.wantTotal)
			}
		})
	}
}

func payIntent(amount float64) intent.Intent {
	return intent.Intent{
		Kind:          intent.KindPayBill,
		Identity:      "5551234567",
		Period:        "2024-10",
		PaymentAmount: amount,
		Page:          1,
		PageSize:      10,
	}
}

func TestDispatch_PayBill_ZeroDebtNeverPays(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	backend.billBody = `{"billTotal": 0}`
	d := newDispatcher(t, backend)

	got := d.Dispatch(context.Background(), payIntent(50))
	if _, ok := got.(billing.NothingDue); !ok {
		t.Fatalf("Dispatch() = %T (%+v), want NothingDue", got, got)
	}
	if atomic.LoadInt32(&backend.payCalls) != 0 {
		t.Error("payment endpoint called for a zero-debt period")
	}
}

func TestDispatch_PayBill_RemainingFallback(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	backend.billBody = `{"billTotal": 200}`
	backend.payBody = `{}`
	d := newDispatcher(t, backend)

	got := d.Dispatch(context.Background(), payIntent(50))
	receipt, ok := got.(billing.PaymentReceipt)
	if !ok {
		t.Fatalf("Dispatch() = %T (%+v), want PaymentReceipt", got, got)
	}
	if receipt.Remaining != 150 {
		t.Errorf("remaining = %v, want 150", receipt.Remaining)
	}
	if receipt.Status != "Processing Complete" {
		t.Errorf("status = %q, want %q", receipt.Status, "Processing Complete")
	}
}

func TestDispatch_PayBill_BackendRemainingWins(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	backend.billBody = `{"billTotal": 200}`
	backend.payBody = `{"remainingAmount": 120, "transactionStatus": "Settled"}`
	d := newDispatcher(t, backend)

	got := d.Dispatch(context.Background(), payIntent(50))
	receipt, ok := got.(billing.PaymentReceipt)
	if !ok {
		t.Fatalf("Dispatch() = %T, want PaymentReceipt", got)
	}
	if receipt.Remaining != 120 {
		t.Errorf("remaining = %v, want backend-reported 120", receipt.Remaining)
	}
	if receipt.Status != "Settled" {
		t.Errorf("status = %q, want %q", receipt.Status, "Settled")
	}
}

func TestDispatch_PayBill_RateLimitedPreCheckStillPays(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	backend.billStatus = http.StatusTooManyRequests
	backend.payBody = `{"remainingAmount": 75}`
	d := newDispatcher(t, backend)

	got := d.Dispatch(context.Background(), payIntent(50))
	receipt, ok := got.(billing.PaymentReceipt)
	if !ok {
		t.Fatalf("Dispatch() = %T (%+v), want PaymentReceipt", got, got)
	}
	if atomic.LoadInt32(&backend.payCalls) != 1 {
		t.Errorf("payment endpoint called %d times, want 1", backend.payCalls)
	}
	if receipt.Remaining != 75 {
		t.Errorf("remaining = %v, want 75", receipt.Remaining)
	}
}

func TestDispatch_PayBill_ValidationFailure(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	backend.billBody = `{"billTotal": 200}`
	backend.payStatus = http.StatusBadRequest
	backend.payBody = `{"error": "amount exceeds outstanding debt"}`
	d := newDispatcher(t, backend)

	got := d.Dispatch(context.Background(), payIntent(5000))
	failure, ok := got.(billing.Failure)
	if !ok {
		t.Fatalf("Dispatch() = %T, want Failure", got)
	}
	if failure.Kind != billing.FailureValidation {
		t.Errorf("failure kind = %s, want %s", failure.Kind, billing.FailureValidation)
	}
	if failure.Detail != `{"error": "amount exceeds outstanding debt"}` {
		t.Errorf("failure detail = %q, want verbatim backend body", failure.Detail)
	}
}

func TestDispatch_Unrecognized(t *testing.T) {
	t.Parallel()

	d := newDispatcher(t, newFakeBackend(t))

	it := queryIntent("2024-10")
	it.Kind = intent.KindUnrecognized
	got := d.Dispatch(context.Background(), it)
	if _, ok := got.(billing.Unrecognized); !ok {
		t.Fatalf("Dispatch() = %T, want Unrecognized", got)
	}
}

func TestDispatch_ConnectivityFailure(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	srv := httptest.NewServer(backend)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := billing.NewClient(config.BillingConfig{
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
	}, log)
	tokens := billing.NewTokenCache(client, log)
	d := billing.NewDispatcher(client, tokens, log)

	// Warm the token cache, then take the backend away.
	if _, err := tokens.Get(context.Background(), "5551234567"); err != nil {
		t.Fatalf("token warm-up failed: %v", err)
	}
	srv.Close()

	got := d.Dispatch(context.Background(), queryIntent("2024-10"))
	failure, ok := got.(billing.Failure)
	if !ok {
		t.Fatalf("Dispatch() = %T, want Failure", got)
	}
	if failure.Kind != billing.FailureConnectivity {
		t.Errorf("failure kind = %s, want %s", failure.Kind, billing.FailureConnectivity)
	}
}
