package model

import (
	"fmt"
	"strings"
)

// MaxXuidLength bounds the textual identifier of a currency.
const MaxXuidLength = 32

type CurrencyID int64

// Xuid is the short textual identifier of a currency, e.g. "usd".
type Xuid string

// NormalizeXuid lower-cases and trims a raw identifier.
func NormalizeXuid(raw string) (Xuid, error) {
	x := strings.ToLower(strings.TrimSpace(raw))
	if x == "" {
		return "", fmt.Errorf("%w: empty xuid", ErrUnknownCurrency)
	}
	if len(x) > MaxXuidLength {
		return "", fmt.Errorf("%w: xuid %q longer than %d bytes", ErrUnknownCurrency, raw, MaxXuidLength)
	}
	return Xuid(x), nil
}

func (x Xuid) String() string {
	return string(x)
}

// CurrencyRow is one row of the identity feed.
type CurrencyRow struct {
	ID   CurrencyID `json:"id"`
	Xuid string     `json:"xuid"`
}
