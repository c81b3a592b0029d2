package domain

import "time"

// Package is a sellable training package: a price and a number of sessions.
type Package struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	PriceCents       int64  `json:"price_cents"`
	SessionsIncluded int    `json:"sessions_included"`
	Active           bool   `json:"active"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PackageUsage is the session-credit ledger entry for one
// (customer, athlete, package) triple. sessions_purchased only ever grows;
// sessions_remaining grows on credit and shrinks on consumption, floored
// at zero.
type PackageUsage struct {
	ID                int64
	CustomerID        int64
	AthleteID         int64
	PackageID         int64
	SessionsPurchased int
	SessionsRemaining int
	UpdatedAt         time.Time
}

// CreditBalance is the customer-facing view of a ledger entry. PackageName
// falls back to a placeholder when the package has since been deleted.
type CreditBalance struct {
	UsageID           int64  `json:"usage_id"`
	AthleteID         int64  `json:"athlete_id"`
	PackageID         int64  `json:"package_id"`
	PackageName       string `json:"package_name"`
	SessionsPurchased int    `json:"sessions_purchased"`
	SessionsRemaining int    `json:"sessions_remaining"`
}
