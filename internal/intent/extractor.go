package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"billgate/internal/period"
)

// extractionPromptTemplate instructs the model to emit exactly one JSON
// record matching the extraction contract. The two %s verbs are the caller's
// phone number; the final %q is the user message.
const extractionPromptTemplate = `You are a billing assistant. Extract information from the user message.

CURRENT USER PHONE: %s

EXTRACTION RULES:

1. INTENT DETECTION:
   - "query", "check", "show", "bill", "invoice", "what is my bill" -> QUERY_BILL
   - "detail", "detailed", "breakdown", "items", "list all bills" -> QUERY_BILL_DETAILED
   - "pay", "payment", "make payment", "settle bill" -> PAY_BILL

2. PHONE NUMBER:
   - If the message names a phone number, use it exactly as provided
   - Otherwise use the current user phone: %s

3. MONTH/YEAR:
   - Extract the billing period if mentioned, formatted as "YYYY-MM"
   - Examples: "October 2024" -> "2024-10", "Oct 2024" -> "2024-10", "10/2024" -> "2024-10"

4. PAYMENT AMOUNT:
   - Extract the numeric amount from currency-like tokens
   - Examples: "100 TL" -> 100, "pay 50" -> 50, "150 lira" -> 150

5. DEFAULT VALUES:
   - month: "2025-01"
   - paymentAmount: 0
   - page: 1
   - pageSize: 10

Return ONLY a single JSON object, no other text.

User message: %q`

// placeholderIdentity is the token some models echo back when they fail to
// fill the phone number slot from the prompt.
const placeholderIdentity = "string"

// Model is the completion contract the extractor needs from the
// language-model service.
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Extractor resolves free text into an Intent. Extract is total: any model
// misbehavior (prose, malformed JSON, connection failure) degrades to the
// deterministic fallback, never to an error.
type Extractor struct {
	model Model
	log   *slog.Logger
}

// NewExtractor creates an Extractor backed by the given completion model.
func NewExtractor(model Model, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{
		model: model,
		log:   log.With("component", "intent_extractor"),
	}
}

// rawRecord mirrors the JSON shape requested from the model. Numeric fields
// are decoded as any because models sometimes quote numbers.
type rawRecord struct {
	Intent        string `json:"intent"`
	PhoneNumber   string `json:"phoneNumber"`
	Month         string `json:"month"`
	PaymentAmount any    `json:"paymentAmount"`
	Page          any    `json:"page"`
	PageSize      any    `json:"pageSize"`
}

// Extract resolves text from the given caller into a fully populated Intent.
func (e *Extractor) Extract(ctx context.Context, text, identity string) Intent {
	prompt := fmt.Sprintf(extractionPromptTemplate, identity, identity, text)

	completion, err := e.model.Complete(ctx, prompt)
	if err != nil {
		e.log.WarnContext(ctx, "LLM extraction call failed, using fallback intent",
			"identity", identity, "error", err)
		return Fallback(identity)
	}

	var raw rawRecord
	if err := json.Unmarshal([]byte(stripCodeFence(completion)), &raw); err != nil {
		e.log.WarnContext(ctx, "LLM returned unparseable extraction record, using fallback intent",
			"identity", identity, "error", err)
		raw = rawRecord{
			Intent:      string(KindQueryBill),
			PhoneNumber: identity,
			Month:       period.Default,
		}
	}

	result := e.repair(raw, identity)
	e.log.DebugContext(ctx, "Intent extracted",
		"identity", result.Identity, "kind", result.Kind, "period", result.Period,
		"amount", result.PaymentAmount)
	return result
}

// repair enforces the extraction contract on whatever the model produced:
// known kind, usable identity, canonical period, numeric fields with
// defaults. It runs whether or not parsing succeeded.
func (e *Extractor) repair(raw rawRecord, identity string) Intent {
	result := Intent{
		Kind:          normalizeKind(raw.Intent),
		Identity:      strings.TrimSpace(raw.PhoneNumber),
		Period:        period.Normalize(raw.Month),
		PaymentAmount: toFloat(raw.PaymentAmount, 0),
		Page:          toPositiveInt(raw.Page, DefaultPage),
		PageSize:      toPositiveInt(raw.PageSize, DefaultPageSize),
	}

	if result.Identity == "" || strings.EqualFold(result.Identity, placeholderIdentity) {
		result.Identity = identity
	}
	if result.PaymentAmount < 0 {
		result.PaymentAmount = 0
	}

	return result
}

func normalizeKind(s string) Kind {
	switch Kind(strings.ToUpper(strings.TrimSpace(s))) {
	case KindQueryBill:
		return KindQueryBill
	case KindQueryBillDetailed:
		return KindQueryBillDetailed
	case KindPayBill:
		return KindPayBill
	default:
		return KindUnrecognized
	}
}

// stripCodeFence removes a surrounding markdown code fence if the model
// wrapped its JSON in one.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func toFloat(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return parsed
		}
	case json.Number:
		if parsed, err := n.Float64(); err == nil {
			return parsed
		}
	}
	return def
}

func toPositiveInt(v any, def int) int {
	f := toFloat(v, float64(def))
	n := int(f)
	if n <= 0 {
		return def
	}
	return n
}
