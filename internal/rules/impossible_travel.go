package rules

import (
	"context"
	"fmt"
	"math"

	"github.com/opensource-finance/creditguard/internal/domain"
)

type countryPair struct{ from, to string }

// Approximate great-circle distances in miles. Lookups try both orders.
var countryDistances = map[countryPair]float64{
	{"US", "GB"}: 3500,
	{"US", "FR"}: 3800,
	{"US", "DE"}: 4000,
	{"US", "CN"}: 6900,
	{"US", "JP"}: 6300,
	{"GB", "CN"}: 5100,
	{"GB", "JP"}: 5900,
	{"FR", "CN"}: 5200,
	{"DE", "JP"}: 5500,
}

// Distance returns the tabulated distance between two countries.
func Distance(a, b string) (float64, bool) {
	if d, ok := countryDistances[countryPair{a, b}]; ok {
		return d, true
	}
	d, ok := countryDistances[countryPair{b, a}]
	return d, ok
}

// ImpossibleTravelRule flags consecutive transactions in different countries
// that would require travelling faster than maxSpeedMph.
type ImpossibleTravelRule struct {
	base
	store       domain.TravelStore
	maxSpeedMph float64
}

// NewImpossibleTravelRule creates an impossible travel rule backed by store.
func NewImpossibleTravelRule(store domain.TravelStore, maxSpeedMph float64, weight int) *ImpossibleTravelRule {
	return &ImpossibleTravelRule{
		base:        base{name: domain.RuleImpossibleTravel, weight: weight},
		store:       store,
		maxSpeedMph: maxSpeedMph,
	}
}

// Evaluate stores the current location before judging, so every transaction
// updates the user's last known location whether or not it triggers.
func (r *ImpossibleTravelRule) Evaluate(ctx context.Context, tx domain.Transaction) (*domain.RuleTrigger, error) {
	prev, found, err := r.store.Swap(ctx, tx.UserID, domain.Location{
		Country: tx.Country,
		At:      tx.Timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("swap location: %w", err)
	}

	if !found || prev.Country == tx.Country {
		return nil, nil
	}

	distance, ok := Distance(prev.Country, tx.Country)
	if !ok {
		return nil, nil
	}

	hours := tx.Timestamp.Sub(prev.At).Hours()
	speed := math.Inf(1)
	if hours > 0 {
		speed = distance / hours
	}

	if speed <= r.maxSpeedMph {
		return nil, nil
	}

	return r.trigger(fmt.Sprintf("Impossible travel: %s → %s in %.1f hours (requires %s mph, max possible: %.0f mph)",
		prev.Country, tx.Country, hours, formatSpeed(speed), r.maxSpeedMph)), nil
}

func formatSpeed(mph float64) string {
	if math.IsInf(mph, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.0f", mph)
}
