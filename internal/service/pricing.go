package service

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Pricing is the credit tariff policy for the generation stages. Tariffs are
// configuration, not code: the defaults below match the product's published
// pricing but every value can be overridden at startup.
type Pricing struct {
	SampleTariff       decimal.Decimal
	RegenerationTariff decimal.Decimal
	FinalDefaultTariff decimal.Decimal
	Final4KTariff      decimal.Decimal

	// UnlimitedSampleTiers lists subscription tiers with free standard
	// sample generations.
	UnlimitedSampleTiers []string
}

// DefaultPricing returns the standard tariff table.
func DefaultPricing() Pricing {
	return Pricing{
		SampleTariff:         decimal.RequireFromString("0.25"),
		RegenerationTariff:   decimal.RequireFromString("0.25"),
		FinalDefaultTariff:   decimal.RequireFromString("1"),
		Final4KTariff:        decimal.RequireFromString("2"),
		UnlimitedSampleTiers: []string{"team", "enterprise"},
	}
}

// SampleCost returns the sample-stage tariff for a subscription tier.
func (p Pricing) SampleCost(tier string) decimal.Decimal {
	if p.tierHasFreeSamples(tier) {
		return decimal.Zero
	}
	return p.SampleTariff
}

// RegenerationCost returns the regeneration tariff for a subscription tier.
func (p Pricing) RegenerationCost(tier string) decimal.Decimal {
	if p.tierHasFreeSamples(tier) {
		return decimal.Zero
	}
	return p.RegenerationTariff
}

// FinalCost returns the final-stage tariff tiered by resolution: 4K output
// is charged at the upscale tariff.
func (p Pricing) FinalCost(desiredResolution string) decimal.Decimal {
	if strings.Contains(strings.ToLower(desiredResolution), "4k") {
		return p.Final4KTariff
	}
	return p.FinalDefaultTariff
}

func (p Pricing) tierHasFreeSamples(tier string) bool {
	tier = strings.ToLower(strings.TrimSpace(tier))
	for _, t := range p.UnlimitedSampleTiers {
		if tier == strings.ToLower(t) {
			return true
		}
	}
	return false
}
