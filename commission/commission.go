// Package commission computes the revenue split between the charging trainer
// and the business owner. The split is stamped onto the purchase at charge
// time and never recomputed, so a later role change does not rewrite history.
package commission

import (
	"fmt"

	"github.com/bodybiz/backend/auth"

	"github.com/shopspring/decimal"
)

var (
	fullRate    = decimal.NewFromInt(1)
	trainerRate = decimal.RequireFromString("0.7")
	ownerRate   = decimal.RequireFromString("0.3")
)

// Split is the immutable commission snapshot for a single charge
type Split struct {
	Rate          decimal.Decimal `json:"rate"`
	TrainerAmount decimal.Decimal `json:"trainerAmount"`
	OwnerAmount   decimal.Decimal `json:"ownerAmount"`
}

// Calculate returns the split for a charge of the given amount made by a
// trainer with the given role. Admins keep the full amount; everyone else
// keeps 70% with 30% to the owner. Both sides are rounded half-up to cents
// independently, so they may differ from amount by at most one cent combined.
func Calculate(amount decimal.Decimal, role auth.Role) (Split, error) {
	if !amount.IsPositive() {
		return Split{}, fmt.Errorf("amount must be positive, got %s", amount.String())
	}
	if !role.Valid() {
		return Split{}, fmt.Errorf("unknown trainer role %q", role)
	}

	if role == auth.RoleAdmin {
		return Split{
			Rate:          fullRate,
			TrainerAmount: amount.Round(2),
			OwnerAmount:   decimal.Zero,
		}, nil
	}

	return Split{
		Rate:          trainerRate,
		TrainerAmount: amount.Mul(trainerRate).Round(2),
		OwnerAmount:   amount.Mul(ownerRate).Round(2),
	}, nil
}
