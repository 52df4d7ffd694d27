package enums

import "fmt"

// PaymentStatus tracks the lifecycle of a payment intent.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusFulfilled PaymentStatus = "fulfilled"
	PaymentStatusTimedOut  PaymentStatus = "timed_out"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusUnknown   PaymentStatus = "unknown"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusFulfilled,
	PaymentStatusTimedOut,
	PaymentStatusCancelled,
	PaymentStatusUnknown,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is expected. Unknown is an
// error fallback and may still be resolved by a later delivery.
func (p PaymentStatus) IsTerminal() bool {
	switch p {
	case PaymentStatusFulfilled, PaymentStatusTimedOut, PaymentStatusCancelled:
		return true
	default:
		return false
	}
}

// AdvancesFrom returns the statuses a row must currently hold for p to be
// written over it. Pending is never a target.
func (p PaymentStatus) AdvancesFrom() []PaymentStatus {
	switch {
	case p.IsTerminal():
		return []PaymentStatus{PaymentStatusPending, PaymentStatusUnknown}
	case p == PaymentStatusUnknown:
		return []PaymentStatus{PaymentStatusPending}
	default:
		return nil
	}
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
