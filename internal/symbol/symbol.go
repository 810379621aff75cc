// Package symbol parses and validates instrument symbols.
//
// A symbol encodes its assets and expiry:
//
//	{BASE}_{QUOTE}_{DD}_{Mon}_{YYYY}_{HH}_{MM}
//	ETH_USD_15_Oct_2024_12_00
package symbol

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidSymbol = errors.New("symbol: invalid symbol format")
	ErrInvalidExpiry = errors.New("symbol: invalid expiry date")
)

var assetRegex = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Expiry fields are plain ASCII digits. Day and hour may drop the leading
// zero; minute and year are fixed width.
var (
	shortField  = regexp.MustCompile(`^[0-9]{1,2}$`)
	minuteField = regexp.MustCompile(`^[0-9]{2}$`)
	yearField   = regexp.MustCompile(`^[0-9]{4}$`)
)

var months = map[string]time.Month{
	"Jan": time.January,
	"Feb": time.February,
	"Mar": time.March,
	"Apr": time.April,
	"May": time.May,
	"Jun": time.June,
	"Jul": time.July,
	"Aug": time.August,
	"Sep": time.September,
	"Oct": time.October,
	"Nov": time.November,
	"Dec": time.December,
}

// Symbol is a parsed instrument symbol.
type Symbol struct {
	ID         string    `json:"id"`
	BaseAsset  string    `json:"base_asset"`
	QuoteAsset string    `json:"quote_asset"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Parse parses and validates a symbol string. The expiry is interpreted
// in UTC.
func Parse(id string) (*Symbol, error) {
	parts := strings.Split(id, "_")
	if len(parts) != 7 {
		return nil, fmt.Errorf("%w: %q (expected BASE_QUOTE_DD_Mon_YYYY_HH_MM)", ErrInvalidSymbol, id)
	}

	base, quote := parts[0], parts[1]
	if !assetRegex.MatchString(base) || !assetRegex.MatchString(quote) {
		return nil, fmt.Errorf("%w: %q (assets must be alphanumeric)", ErrInvalidSymbol, id)
	}

	expiry, err := parseExpiry(parts[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidExpiry, id, err)
	}

	return &Symbol{
		ID:         id,
		BaseAsset:  base,
		QuoteAsset: quote,
		ExpiresAt:  expiry,
	}, nil
}

// parseExpiry parses [DD, Mon, YYYY, HH, MM]. time.Date normalizes
// out-of-range fields, so the result is compared back against the input.
func parseExpiry(p []string) (time.Time, error) {
	month, ok := months[p[1]]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown month %q", p[1])
	}

	fields := []struct {
		s  string
		re *regexp.Regexp
	}{
		{p[0], shortField},
		{p[2], yearField},
		{p[3], shortField},
		{p[4], minuteField},
	}
	var nums [4]int
	for i, f := range fields {
		if !f.re.MatchString(f.s) {
			return time.Time{}, fmt.Errorf("bad number %q", f.s)
		}
		n, err := strconv.Atoi(f.s)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad number %q", f.s)
		}
		nums[i] = n
	}
	day, year, hour, minute := nums[0], nums[1], nums[2], nums[3]

	t := time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month || t.Year() != year || t.Hour() != hour || t.Minute() != minute {
		return time.Time{}, fmt.Errorf("no such time %02d %s %04d %02d:%02d", day, p[1], year, hour, minute)
	}
	return t, nil
}
