package billing

// Outcome is the tagged union produced by one dispatch call. Every variant,
// including Failure, is a terminal result that maps to exactly one reply
// template; the formatter type-switches over the closed set below.
type Outcome interface {
	outcome()
}

// BillStatement is a successful single-period bill query.
type BillStatement struct {
	Account string
	Period  string
	Amount  float64
	Paid    bool
}

// BillList is a successful detailed bill listing with at least one entry.
type BillList struct {
	Items []BillItem
	Total int
}

// PaymentReceipt is a successful payment.
type PaymentReceipt struct {
	Account   string
	Period    string
	Paid      float64
	Remaining float64
	Status    string
}

// NothingDue reports a payment request for a period with no outstanding
// debt. The payment endpoint was never called.
type NothingDue struct {
	Period string
}

// EmptyList reports a detailed listing that returned no entries.
type EmptyList struct{}

// Unrecognized reports an intent the gateway cannot map to a billing
// operation. It is a successful terminal outcome: the user still gets a
// guidance reply.
type Unrecognized struct{}

// FailureKind classifies a dispatch failure.
type FailureKind string

const (
	FailureAuth         FailureKind = "authentication"
	FailureRateLimited  FailureKind = "rate_limited"
	FailureValidation   FailureKind = "validation"
	FailureConnectivity FailureKind = "connectivity"
	FailureBackend      FailureKind = "backend"
	FailureSystem       FailureKind = "system"
)

// Failure is a classified dispatch failure. Detail carries backend or
// advisory text for templates that include it.
type Failure struct {
	Kind   FailureKind
	Detail string
}

func (BillStatement) outcome()  {}
func (BillList) outcome()       {}
func (PaymentReceipt) outcome() {}
func (NothingDue) outcome()     {}
func (EmptyList) outcome()      {}
func (Unrecognized) outcome()   {}
func (Failure) outcome()        {}
