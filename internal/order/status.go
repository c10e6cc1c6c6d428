package order

import "tienda-be/internal/payment"

// transitions lists the legal moves. Anything else is InvalidTransition.
var transitions = map[Status][]Status{
	StatusNone:    {StatusPending},
	StatusPending: {StatusPaid, StatusCancelled, StatusRejected},
	StatusPaid:    {StatusRefunded},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// TargetFor maps a provider status to the order status it implies. ok is
// false when the payment status does not move the order (still pending,
// partial refund, unknown).
func TargetFor(current Status, ps payment.Status) (target Status, ok bool) {
	switch ps {
	case payment.StatusApproved:
		return StatusPaid, true
	case payment.StatusRejected:
		return StatusRejected, true
	case payment.StatusCancelled:
		// A void of a captured payment gives the money back.
		if current == StatusPaid {
			return StatusRefunded, true
		}
		return StatusCancelled, true
	case payment.StatusRefunded:
		return StatusRefunded, true
	default:
		return current, false
	}
}
