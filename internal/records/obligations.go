package records

import (
	"strconv"
	"strings"
	"time"

	"schoolrecords/internal/apperrors"
)

// CreateObligation stores a payment obligation. The caller decides the
// status; a paid obligation must carry its paid date and a pending one must not.
func (s *Store) CreateObligation(input ObligationInput) (PaymentObligation, error) {
	input.Period = strings.TrimSpace(input.Period)
	if err := validateStruct(input); err != nil {
		return PaymentObligation{}, err
	}
	if input.DueDate.IsZero() {
		return PaymentObligation{}, apperrors.Validation("dueDate", "dueDate is required")
	}
	switch {
	case input.Status == StatusPaid && input.PaidDate == nil:
		return PaymentObligation{}, apperrors.Validation("paidDate", "paidDate is required when status is paid")
	case input.Status == StatusPending && input.PaidDate != nil:
		return PaymentObligation{}, apperrors.Validation("paidDate", "paidDate must be empty while status is pending")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.seq.Obligations++
	obligation := PaymentObligation{
		ID:         s.state.seq.Obligations,
		EnrolleeID: input.EnrolleeID,
		Amount:     input.Amount,
		Period:     input.Period,
		Status:     input.Status,
		DueDate:    input.DueDate,
		PaidDate:   cloneTime(input.PaidDate),
	}
	s.state.obligations = append(s.state.obligations, obligation)
	return cloneObligation(obligation), nil
}

// SettleObligation moves a pending obligation to paid. A zero paidAt means
// now. Fees may be paid ahead of time, so paidAt is not bounded by DueDate.
func (s *Store) SettleObligation(id int, paidAt time.Time) (PaymentObligation, error) {
	if paidAt.IsZero() {
		paidAt = s.nowFn()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.state.obligations
	idx, ok := findIndex(len(list), func(i int) int { return list[i].ID }, id)
	if !ok {
		return PaymentObligation{}, apperrors.NotFound("obligation " + strconv.Itoa(id) + " not found")
	}
	if list[idx].Status == StatusPaid {
		return PaymentObligation{}, apperrors.Conflict("obligation " + strconv.Itoa(id) + " is already paid")
	}
	list[idx].Status = StatusPaid
	list[idx].PaidDate = &paidAt
	return cloneObligation(list[idx]), nil
}

// ListObligations joins every obligation with its enrollee's name, falling
// back to UnknownName when the enrollee does not resolve.
func (s *Store) ListObligations() []ObligationView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ObligationView, 0, len(s.state.obligations))
	for _, o := range s.state.obligations {
		out = append(out, ObligationView{
			PaymentObligation: cloneObligation(o),
			EnrolleeName:      s.enrolleeName(o.EnrolleeID),
		})
	}
	return out
}

// ListObligationsForEnrollee returns the enrollee's obligations in creation order.
func (s *Store) ListObligationsForEnrollee(enrolleeID int) []PaymentObligation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []PaymentObligation{}
	for _, o := range s.state.obligations {
		if o.EnrolleeID == enrolleeID {
			out = append(out, cloneObligation(o))
		}
	}
	return out
}

// SumByStatus totals the amount of obligations in status.
func (s *Store) SumByStatus(status ObligationStatus) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sumByStatus(status)
}

// CountByStatus counts obligations in status.
func (s *Store) CountByStatus(status ObligationStatus) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countByStatus(status)
}

func (s *Store) sumByStatus(status ObligationStatus) int {
	total := 0
	for _, o := range s.state.obligations {
		if o.Status == status {
			total += o.Amount
		}
	}
	return total
}

func (s *Store) countByStatus(status ObligationStatus) int {
	n := 0
	for _, o := range s.state.obligations {
		if o.Status == status {
			n++
		}
	}
	return n
}
