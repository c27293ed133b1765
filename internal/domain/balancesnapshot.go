// Package domain defines core data structures shared by the sync client, storage and dashboard.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// PrimarySymbol is the display symbol of the primary spendable token.
	PrimarySymbol = "DYO"
	// SecondarySymbol is the display symbol of the secondary denomination.
	SecondarySymbol = "DYS"

	displayPlaces = 2
)

// BalanceSnapshot point-in-time copy of server-reported balances for one account.
// The server is the only authority; the client never recomputes these values.
type BalanceSnapshot struct {
	Account   string          `json:"account"`
	Available decimal.Decimal `json:"available"`
	Secondary decimal.Decimal `json:"secondary"`
	Staked    decimal.Decimal `json:"staked"`
	Total     decimal.Decimal `json:"total"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// NewBalanceSnapshot creates a new BalanceSnapshot.
func NewBalanceSnapshot(
	account string,
	available decimal.Decimal,
	secondary decimal.Decimal,
	staked decimal.Decimal,
	total decimal.Decimal,
	fetchedAt time.Time,
) BalanceSnapshot {
	return BalanceSnapshot{
		Account:   account,
		Available: available,
		Secondary: secondary,
		Staked:    staked,
		Total:     total,
		FetchedAt: fetchedAt,
	}
}

// IsZero reports whether nothing has been fetched yet.
func (s BalanceSnapshot) IsZero() bool {
	return s.Account == "" && s.FetchedAt.IsZero()
}

// Consistent reports whether Total == Available + Staked.
// Informational only: a mismatch is displayed as-is.
func (s BalanceSnapshot) Consistent() bool {
	return s.Total.Equal(s.Available.Add(s.Staked))
}

// SameBalances compares the numeric fields, ignoring fetch time.
func (s BalanceSnapshot) SameBalances(o BalanceSnapshot) bool {
	return s.Account == o.Account &&
		s.Available.Equal(o.Available) &&
		s.Secondary.Equal(o.Secondary) &&
		s.Staked.Equal(o.Staked) &&
		s.Total.Equal(o.Total)
}

// Display returns the human-readable rendition of the snapshot.
func (s BalanceSnapshot) Display() SnapshotDisplay {
	return SnapshotDisplay{
		Available: FormatAmount(s.Available, PrimarySymbol),
		Secondary: FormatAmount(s.Secondary, SecondarySymbol),
		Staked:    FormatAmount(s.Staked, PrimarySymbol),
		Total:     FormatAmount(s.Total, PrimarySymbol),
	}
}

// SnapshotDisplay formatted balance fields, e.g. "120.50 DYO".
type SnapshotDisplay struct {
	Available string `json:"available"`
	Secondary string `json:"secondary"`
	Staked    string `json:"staked"`
	Total     string `json:"total"`
}

// FormatAmount renders amount with two decimal places followed by symbol.
func FormatAmount(amount decimal.Decimal, symbol string) string {
	return amount.StringFixed(displayPlaces) + " " + symbol
}

// BalanceSnapshotRecord bundles a snapshot with the log index it originated from.
type BalanceSnapshotRecord struct {
	Index    uint64
	Snapshot BalanceSnapshot
}
