package domain

import "github.com/shopspring/decimal"

// RateSource tells whether an APY figure came from the server or from configuration.
type RateSource string

const (
	RateSourceLive     RateSource = "live"
	RateSourceFallback RateSource = "fallback"
)

// RewardRate annual percentage yield together with its source.
type RewardRate struct {
	APY    decimal.Decimal `json:"apy"`
	Source RateSource      `json:"source"`
}

// ResolveRewardRate prefers the server-reported APY and marks the configured
// default explicitly when the server did not report one.
func ResolveRewardRate(live *decimal.Decimal, fallback decimal.Decimal) RewardRate {
	if live != nil {
		return RewardRate{APY: *live, Source: RateSourceLive}
	}
	return RewardRate{APY: fallback, Source: RateSourceFallback}
}
