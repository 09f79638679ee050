// Package format renders dispatch outcomes as user-facing reply text.
// Rendering is pure: no I/O, no state, one string per outcome.
package format

import (
	"fmt"
	"strconv"
	"strings"

	"billgate/internal/billing"
)

const divider = "══════════════════════"

// Outcome renders a single outcome to its reply text. Every outcome variant
// maps to exactly one template; an unknown variant gets the processing-error
// shape so a reply is always produced.
func Outcome(o billing.Outcome) string {
	switch v := o.(type) {
	case billing.BillStatement:
		return billStatement(v)
	case billing.BillList:
		return billList(v)
	case billing.PaymentReceipt:
		return paymentReceipt(v)
	case billing.NothingDue:
		return fmt.Sprintf("ℹ️ No bill found for %s. Amount: 0 TL", v.Period)
	case billing.EmptyList:
		return "📭 No detailed bills found."
	case billing.Unrecognized:
		return `🤖 Command not recognized. Try "Check my bill" or "Pay bill".`
	case billing.Failure:
		return failure(v)
	default:
		return Error(fmt.Sprintf("unsupported outcome %T", o))
	}
}

// Error renders the terminal processing-error reply used when the pipeline
// itself fails before an outcome exists.
func Error(detail string) string {
	return fmt.Sprintf("❌ **PROCESSING ERROR**\nError: %s", detail)
}

func billStatement(v billing.BillStatement) string {
	status := "❌ UNPAID"
	if v.Paid {
		status = "✅ PAID"
	}

	var b strings.Builder
	b.WriteString("💰 **BILL STATEMENT**\n")
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "📱 Account: %s\n", v.Account)
	fmt.Fprintf(&b, "📅 Billing Period: %s\n", v.Period)
	fmt.Fprintf(&b, "💵 Amount Due: %s TL\n", amount(v.Amount))
	fmt.Fprintf(&b, "📊 Status: %s\n", status)
	b.WriteString(divider)
	return b.String()
}

func billList(v billing.BillList) string {
	var b strings.Builder
	b.WriteString("📋 **DETAILED BILLS**\n")
	for i, item := range v.Items {
		status := "❌ Unpaid"
		if item.Paid() {
			status = "✅ Paid"
		}
		fmt.Fprintf(&b, "%d. **%s**: %s TL (%s)\n", i+1, item.Month, amount(item.Amount), status)
	}
	fmt.Fprintf(&b, "\n💰 Total: %d bills.", v.Total)
	return b.String()
}

func paymentReceipt(v billing.PaymentReceipt) string {
	var b strings.Builder
	b.WriteString("✅ **PAYMENT SUCCESSFUL**\n")
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "📱 Account: %s\n", v.Account)
	fmt.Fprintf(&b, "📅 Period: %s\n", v.Period)
	fmt.Fprintf(&b, "💵 Paid: %s TL\n", amount(v.Paid))
	fmt.Fprintf(&b, "📉 Remaining Debt: %s TL\n", amount(v.Remaining))
	fmt.Fprintf(&b, "📝 Status: %s\n", v.Status)
	b.WriteString(divider)
	return b.String()
}

func failure(v billing.Failure) string {
	switch v.Kind {
	case billing.FailureAuth:
		return fmt.Sprintf("❌ Authentication error. Please login again with phone: %s", v.Detail)
	case billing.FailureRateLimited:
		if v.Detail == billing.SystemRateLimitAdvisory {
			return "🛑 **System Rate Limit Reached**\n" + v.Detail
		}
		return "🛑 **Rate Limit Reached**\n" + v.Detail
	case billing.FailureValidation:
		return fmt.Sprintf("❌ Payment Failed: %s", v.Detail)
	case billing.FailureConnectivity:
		// Transport detail stays in the logs, not in the chat.
		return "❌ System Error: Service is unreachable. Please try again later."
	default:
		return fmt.Sprintf("❌ System Error: %s", v.Detail)
	}
}

// amount renders a monetary value without a forced decimal tail, so whole
// amounts read "150 TL" rather than "150.00 TL".
func amount(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
