package shared

import (
	"errors"
	"fmt"
)

// PaymentStatus is the settlement state shared by sales and receivables.
type PaymentStatus string

const (
	// PaymentStatusDraft is a cart that has not been submitted.
	PaymentStatusDraft PaymentStatus = ""
	// PaymentStatusPaid means nothing is owed.
	PaymentStatusPaid PaymentStatus = "PAID"
	// PaymentStatusPartiallyPaid means a down payment or instalment was received.
	PaymentStatusPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	// PaymentStatusUnpaid means the full amount is still owed.
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
)

// PaymentEvent drives PaymentStatus transitions.
type PaymentEvent string

const (
	// EventSubmitPaid submits a cart paid in full.
	EventSubmitPaid PaymentEvent = "SUBMIT_PAID"
	// EventSubmitDebtWithDownPayment submits a cart with a partial down payment.
	EventSubmitDebtWithDownPayment PaymentEvent = "SUBMIT_DEBT_DP"
	// EventSubmitDebt submits a cart with nothing paid.
	EventSubmitDebt PaymentEvent = "SUBMIT_DEBT"
	// EventPartialPayment records an instalment leaving a balance.
	EventPartialPayment PaymentEvent = "PARTIAL_PAYMENT"
	// EventFullPayment records the instalment that settles the balance.
	EventFullPayment PaymentEvent = "FULL_PAYMENT"
)

// ErrInvalidPaymentTransition indicates the event is not allowed in the current state.
var ErrInvalidPaymentTransition = errors.New("payment transition invalid")

// Valid reports whether s is a persisted status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPaid, PaymentStatusPartiallyPaid, PaymentStatusUnpaid:
		return true
	}
	return false
}

// Transition is the single authority on settlement state changes.
func Transition(current PaymentStatus, event PaymentEvent) (PaymentStatus, error) {
	switch current {
	case PaymentStatusDraft:
		switch event {
		case EventSubmitPaid:
			return PaymentStatusPaid, nil
		case EventSubmitDebtWithDownPayment:
			return PaymentStatusPartiallyPaid, nil
		case EventSubmitDebt:
			return PaymentStatusUnpaid, nil
		}
	case PaymentStatusUnpaid, PaymentStatusPartiallyPaid:
		switch event {
		case EventPartialPayment:
			return PaymentStatusPartiallyPaid, nil
		case EventFullPayment:
			return PaymentStatusPaid, nil
		}
	}
	return current, fmt.Errorf("%w: %q on %q", ErrInvalidPaymentTransition, event, current)
}

// SubmitEvent picks the submit event for a cart given what was paid up front.
func SubmitEvent(grandTotal, paid int64) PaymentEvent {
	switch {
	case paid >= grandTotal:
		return EventSubmitPaid
	case paid > 0:
		return EventSubmitDebtWithDownPayment
	default:
		return EventSubmitDebt
	}
}

// PaymentEventFor picks the instalment event given the balances after applying it.
func PaymentEventFor(amountDue, amountPaid int64) PaymentEvent {
	if amountPaid >= amountDue {
		return EventFullPayment
	}
	return EventPartialPayment
}

// DeriveStatus recomputes a status from balances alone.
func DeriveStatus(amountDue, amountPaid int64) PaymentStatus {
	switch {
	case amountPaid >= amountDue:
		return PaymentStatusPaid
	case amountPaid > 0:
		return PaymentStatusPartiallyPaid
	default:
		return PaymentStatusUnpaid
	}
}
