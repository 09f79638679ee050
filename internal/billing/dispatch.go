package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"billgate/internal/intent"
)

// Advisory texts attached to rate-limit outcomes. QueryRateLimitAdvisory
// marks the per-subscriber daily query cap; SystemRateLimitAdvisory marks
// backend-wide throttling hit outside the query path.
const (
	QueryRateLimitAdvisory  = "You have exceeded the daily limit (3 queries) for checking bills."
	SystemRateLimitAdvisory = "Please try again later."
)

// defaultTransactionStatus is reported when the payment endpoint returns no
// transaction-status text.
const defaultTransactionStatus = "Processing Complete"

// Dispatcher executes structured intents against the billing backend and
// produces classified outcomes. It never returns an error and never lets a
// raw network failure escape: every path ends in an Outcome.
type Dispatcher struct {
	client *Client
	tokens *TokenCache
	log    *slog.Logger
}

// NewDispatcher creates a Dispatcher over the given client and token cache.
func NewDispatcher(client *Client, tokens *TokenCache, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{
		client: client,
		tokens: tokens,
		log:    log.With("component", "dispatcher"),
	}
}

// Dispatch runs one intent to a terminal outcome. A usable token is required
// before any backend call; failures the intent branches do not handle
// themselves are classified at this level, and a panic anywhere below
// degrades to a system failure rather than escaping.
func (d *Dispatcher) Dispatch(ctx context.Context, it intent.Intent) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.log.ErrorContext(ctx, "Panic during dispatch", "kind", it.Kind, "identity", it.Identity, "panic", r)
			out = Failure{Kind: FailureSystem, Detail: fmt.Sprintf("%v", r)}
		}
	}()

	d.log.InfoContext(ctx, "Dispatching intent",
		"kind", it.Kind, "identity", it.Identity, "period", it.Period)

	token, err := d.tokens.Get(ctx, it.Identity)
	if err != nil {
		d.log.WarnContext(ctx, "No usable token, skipping backend calls", "identity", it.Identity, "error", err)
		return Failure{Kind: FailureAuth, Detail: it.Identity}
	}

	switch it.Kind {
	case intent.KindQueryBill:
		out, err = d.queryBill(ctx, token, it)
	case intent.KindQueryBillDetailed:
		out, err = d.queryBillDetailed(ctx, token, it)
	case intent.KindPayBill:
		out, err = d.payBill(ctx, token, it)
	case intent.KindUnrecognized:
		return Unrecognized{}
	default:
		// Closed union; anything unmapped still gets the guidance reply.
		return Unrecognized{}
	}

	if err != nil {
		return d.classify(ctx, err)
	}
	return out
}

func (d *Dispatcher) queryBill(ctx context.Context, token string, it intent.Intent) (Outcome, error) {
	resp, err := d.client.FetchBill(ctx, token, it.Period)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RateLimited() {
			// The daily query cap is an advisory, not a failure of the message.
			return Failure{Kind: FailureRateLimited, Detail: QueryRateLimitAdvisory}, nil
		}
		return nil, err
	}

	return BillStatement{
		Account: it.Identity,
		Period:  resp.Period(it.Period),
		Amount:  resp.AmountDue(),
		Paid:    resp.Paid(),
	}, nil
}

func (d *Dispatcher) queryBillDetailed(ctx context.Context, token string, it intent.Intent) (Outcome, error) {
	resp, err := d.client.FetchDetailedBills(ctx, token, it.Page, it.PageSize)
	if err != nil {
		return nil, err
	}

	items := resp.List()
	if len(items) == 0 {
		return EmptyList{}, nil
	}
	return BillList{Items: items, Total: resp.Count()}, nil
}

// payBill pre-checks the current debt with the same bill fetch QUERY_BILL
// uses. A rate-limited pre-check is skipped, not aborted: payment
// availability outranks the convenience check, so the payment proceeds
// without a known debt baseline.
func (d *Dispatcher) payBill(ctx context.Context, token string, it intent.Intent) (Outcome, error) {
	var debt float64
	debtKnown := true

	resp, err := d.client.FetchBill(ctx, token, it.Period)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RateLimited() {
			d.log.WarnContext(ctx, "Rate limit hit on payment pre-check, proceeding without debt baseline",
				"identity", it.Identity, "period", it.Period)
			debtKnown = false
		} else {
			return nil, err
		}
	} else {
		debt = resp.AmountDue()
	}

	// A period with known zero debt must never reach the payment endpoint.
	if debtKnown && debt == 0 {
		return NothingDue{Period: it.Period}, nil
	}

	payment, err := d.client.Pay(ctx, token, it.Identity, it.Period, it.PaymentAmount)
	if err != nil {
		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr) && apiErr.BadRequest() && !apiErr.RateLimited():
			return Failure{Kind: FailureValidation, Detail: apiErr.Body}, nil
		default:
			d.log.ErrorContext(ctx, "Payment call failed", "identity", it.Identity, "period", it.Period, "error", err)
			return Failure{Kind: FailureBackend, Detail: "Payment processing failed. Please try again."}, nil
		}
	}

	remaining := debt - it.PaymentAmount
	if payment.RemainingAmount != nil {
		remaining = *payment.RemainingAmount
	}
	status := payment.TransactionStatus
	if status == "" {
		status = defaultTransactionStatus
	}

	return PaymentReceipt{
		Account:   it.Identity,
		Period:    it.Period,
		Paid:      it.PaymentAmount,
		Remaining: remaining,
		Status:    status,
	}, nil
}

// classify downgrades an error no branch handled into a terminal failure
// outcome: uncaught rate limits, connectivity failures, other backend
// statuses, and everything else as a system failure.
func (d *Dispatcher) classify(ctx context.Context, err error) Failure {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.RateLimited() {
			return Failure{Kind: FailureRateLimited, Detail: SystemRateLimitAdvisory}
		}
		d.log.ErrorContext(ctx, "Backend error during dispatch", "status", apiErr.StatusCode, "error", err)
		return Failure{Kind: FailureBackend, Detail: fmt.Sprintf("backend returned status %d", apiErr.StatusCode)}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		d.log.WarnContext(ctx, "Connectivity failure during dispatch", "error", err)
		return Failure{Kind: FailureConnectivity, Detail: err.Error()}
	}

	d.log.ErrorContext(ctx, "Unexpected error during dispatch", "error", err)
	return Failure{Kind: FailureSystem, Detail: err.Error()}
}
