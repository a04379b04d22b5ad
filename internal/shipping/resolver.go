// Package shipping consumes the external rate resolver: postal-code
// validation, per-code caching, and last-request-wins delivery of results.
package shipping

import (
	"context"
	"regexp"

	"github.com/rajbirverr/centurionintimates-sub000/internal/domain"
)

// Method is one available shipping option for a destination.
type Method struct {
	Method            string       `json:"method"`
	Cost              domain.Paise `json:"cost"`
	EstimatedDelivery string       `json:"estimated_delivery"`
}

const (
	MethodStandard = "standard"
	MethodExpress  = "express"
)

// RateResolver computes available methods and costs for a destination
// postal code. The computation itself is an external collaborator.
type RateResolver interface {
	Resolve(ctx context.Context, postalCode string) ([]Method, error)
}

var postalCodeRe = regexp.MustCompile(`^[0-9]{6}$`)

// ValidPostalCode reports whether the code is exactly six digits.
func ValidPostalCode(code string) bool {
	return postalCodeRe.MatchString(code)
}

// StaticResolver is the flat two-tier rate table the storefront ships with.
type StaticResolver struct{}

func (StaticResolver) Resolve(_ context.Context, postalCode string) ([]Method, error) {
	if !ValidPostalCode(postalCode) {
		return nil, nil
	}
	return []Method{
		{Method: MethodStandard, Cost: 12000, EstimatedDelivery: "5-7 business days"},
		{Method: MethodExpress, Cost: 25000, EstimatedDelivery: "2-3 business days"},
	}, nil
}
