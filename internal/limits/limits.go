// Package limits holds the pure admissibility check for a proposed batch of
// bet lines. It never touches the database: callers pass in the counters and
// shift total they read inside the owning transaction, so the decision is
// made against locked-in state.
package limits

import (
	"sort"

	"loteria-pos/internal/models"
)

// BatchPlan is the admitted batch aggregated by number, ready to be applied
// by the sale transaction.
type BatchPlan struct {
	// Amounts maps each distinct number to its summed requested amount
	// (a cart may repeat a number; duplicates merge before limit checks).
	Amounts map[string]int64
	// Counts maps each distinct number to how many input lines contributed.
	Counts map[string]int
	// Numbers is the distinct numbers in deterministic order.
	Numbers []string
	// Total is the batch grand total.
	Total int64
}

// Evaluate decides whether a batch is admissible given the current counters
// and configuration. counters maps number -> amount already sold in the
// shift; shiftTotal is the shift's authoritative running total. Returns the
// aggregated plan on admission, or a rejection describing every problem of
// the failing kind.
//
// Decision order is significant: per-line validation short-circuits before
// any limit check, and the global shift limit short-circuits before the
// per-number checks. A batch is always accepted or refused wholesale.
func Evaluate(items []models.SaleItem, counters map[string]int64, shiftTotal, limitPerNumber, limitTotal int64) (*BatchPlan, *models.Rejection) {
	var lineErrors []models.LineError
	plan := &BatchPlan{
		Amounts: make(map[string]int64),
		Counts:  make(map[string]int),
	}

	for _, item := range items {
		if msg := validateLine(item); msg != "" {
			lineErrors = append(lineErrors, models.LineError{Number: item.Number, Error: msg})
			continue
		}
		if _, seen := plan.Amounts[item.Number]; !seen {
			plan.Numbers = append(plan.Numbers, item.Number)
		}
		plan.Amounts[item.Number] += item.Amount
		plan.Counts[item.Number]++
		plan.Total += item.Amount
	}

	if len(lineErrors) > 0 {
		return nil, &models.Rejection{Kind: models.RejectValidation, LineErrors: lineErrors}
	}

	if limitTotal > 0 && shiftTotal+plan.Total > limitTotal {
		available := limitTotal - shiftTotal
		if available < 0 {
			available = 0
		}
		return nil, &models.Rejection{
			Kind:      models.RejectGlobalLimit,
			Available: available,
			Requested: plan.Total,
		}
	}

	var failed []models.FailedNumber
	sort.Strings(plan.Numbers)
	for _, number := range plan.Numbers {
		requested := plan.Amounts[number]
		available := limitPerNumber - counters[number]
		if requested > available {
			if available < 0 {
				available = 0
			}
			failed = append(failed, models.FailedNumber{
				Number:    number,
				Requested: requested,
				Available: available,
			})
		}
	}
	if len(failed) > 0 {
		return nil, &models.Rejection{Kind: models.RejectNumberLimit, FailedItems: failed}
	}

	return plan, nil
}

// ValidateLine checks a single bet line outside of any batch, for the
// single-sale path. Returns an empty string when the line is well formed.
func ValidateLine(item models.SaleItem) string {
	return validateLine(item)
}

func validateLine(item models.SaleItem) string {
	if len(item.Number) != 2 {
		return "number must be exactly two digits"
	}
	if item.Amount <= 0 {
		return "amount must be positive"
	}
	if item.Amount%5 != 0 {
		return "amount must be a multiple of 5"
	}
	return ""
}
