package billing

// The billing backend's payload shapes vary between deployments: some report
// an aggregate total, some a bare amount, some only an itemized list. The
// accessor methods below are the canonical field-priority contract; callers
// never poke at the optional fields directly.

// BillItem is one entry of an itemized bill list.
type BillItem struct {
	Month  string  `json:"month"`
	Amount float64 `json:"amount"`
	IsPaid *bool   `json:"isPaid"`
}

// Paid reports the entry's paid flag, defaulting to false when absent.
func (i BillItem) Paid() bool {
	return i.IsPaid != nil && *i.IsPaid
}

// BillResponse is the backend's answer to a single-period bill fetch.
type BillResponse struct {
	BillTotal *float64   `json:"billTotal"`
	Amount    *float64   `json:"amount"`
	Bills     []BillItem `json:"bills"`
	IsPaid    *bool      `json:"isPaid"`
}

// AmountDue extracts the billed amount. Priority: aggregate billTotal, then
// top-level amount, then the first itemized entry, else zero.
func (r *BillResponse) AmountDue() float64 {
	switch {
	case r.BillTotal != nil:
		return *r.BillTotal
	case r.Amount != nil:
		return *r.Amount
	case len(r.Bills) > 0:
		return r.Bills[0].Amount
	default:
		return 0
	}
}

// Paid extracts the paid status: the first itemized entry if present, else
// the top-level flag, else false.
func (r *BillResponse) Paid() bool {
	if len(r.Bills) > 0 {
		return r.Bills[0].Paid()
	}
	return r.IsPaid != nil && *r.IsPaid
}

// Period returns the billing period reported by the first itemized entry,
// falling back to the requested period when the response carries none.
func (r *BillResponse) Period(requested string) string {
	if len(r.Bills) > 0 && r.Bills[0].Month != "" {
		return r.Bills[0].Month
	}
	return requested
}

// DetailedBillsResponse is the backend's answer to a paginated bill listing.
// The list arrives under either "bills" or a generic "items" field.
type DetailedBillsResponse struct {
	Bills      []BillItem `json:"bills"`
	Items      []BillItem `json:"items"`
	TotalCount *int       `json:"totalCount"`
}

// List returns the itemized entries regardless of which field carried them.
func (r *DetailedBillsResponse) List() []BillItem {
	if len(r.Bills) > 0 {
		return r.Bills
	}
	return r.Items
}

// Count returns the server-reported total when present, else the number of
// returned entries.
func (r *DetailedBillsResponse) Count() int {
	if r.TotalCount != nil {
		return *r.TotalCount
	}
	return len(r.List())
}

// PaymentResponse is the backend's answer to a payment call.
type PaymentResponse struct {
	RemainingAmount   *float64 `json:"remainingAmount"`
	TransactionStatus string   `json:"transactionStatus"`
}
