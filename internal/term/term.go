// Package term handles pool symbol and bond ticker parsing, and converts
// a bond's maturity date into the days-remaining figure the pricing models
// take.
package term

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Supported base assets.
const (
	AssetDAI   = "DAI"
	AssetUSDC  = "USDC"
	AssetETH   = "ETH"
	AssetSTETH = "STETH"
)

var validAssets = map[string]bool{
	AssetDAI:   true,
	AssetUSDC:  true,
	AssetETH:   true,
	AssetSTETH: true,
}

// poolRegex matches: HD-{ASSET}-{DAYS}D
// Example: HD-DAI-365D
var poolRegex = regexp.MustCompile(`^HD-([A-Z]+)-([1-9][0-9]*)D$`)

// bondRegex matches: PT-{ASSET}-{YYYYMMDD}
// Example: PT-DAI-20261231
var bondRegex = regexp.MustCompile(`^PT-([A-Z]+)-(\d{8})$`)

const dateLayout = "20060102"

// MaxDurationDays bounds a pool's position duration.
const MaxDurationDays = 3650

var (
	ErrInvalidSymbol   = errors.New("term: invalid pool symbol format")
	ErrInvalidTicker   = errors.New("term: invalid bond ticker format")
	ErrInvalidAsset    = errors.New("term: unsupported base asset")
	ErrInvalidDuration = errors.New("term: position duration out of range")
	ErrAssetMismatch   = errors.New("term: bond asset does not match pool")
)

// Pool is a parsed pool symbol.
type Pool struct {
	Symbol       string `json:"symbol"`
	Asset        string `json:"asset"`
	DurationDays int    `json:"duration_days"`
}

// Bond is a parsed principal token ticker.
type Bond struct {
	Ticker   string    `json:"ticker"`
	Asset    string    `json:"asset"`
	Maturity time.Time `json:"maturity"`
}

// ParsePoolSymbol parses and validates a pool symbol.
// Format: HD-{ASSET}-{DAYS}D
func ParsePoolSymbol(symbol string) (*Pool, error) {
	m := poolRegex.FindStringSubmatch(symbol)
	if m == nil {
		return nil, fmt.Errorf("%w: %s (expected HD-{asset}-{days}D)", ErrInvalidSymbol, symbol)
	}
	if !validAssets[m[1]] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAsset, m[1])
	}
	days, err := strconv.Atoi(m[2])
	if err != nil || days > MaxDurationDays {
		return nil, fmt.Errorf("%w: %s days", ErrInvalidDuration, m[2])
	}
	return &Pool{Symbol: symbol, Asset: m[1], DurationDays: days}, nil
}

// PoolSymbol formats the symbol of a pool for asset with the given term.
func PoolSymbol(asset string, durationDays int) string {
	return fmt.Sprintf("HD-%s-%dD", asset, durationDays)
}

// ParseBondTicker parses and validates a principal token ticker.
// Format: PT-{ASSET}-{YYYYMMDD}
func ParseBondTicker(ticker string) (*Bond, error) {
	m := bondRegex.FindStringSubmatch(ticker)
	if m == nil {
		return nil, fmt.Errorf("%w: %s (expected PT-{asset}-{YYYYMMDD})", ErrInvalidTicker, ticker)
	}
	if !validAssets[m[1]] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAsset, m[1])
	}
	maturity, err := time.Parse(dateLayout, m[2])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %s", ErrInvalidTicker, m[2])
	}
	return &Bond{Ticker: ticker, Asset: m[1], Maturity: maturity}, nil
}

// BondTicker formats the ticker of a bond minted at mint in pool p. The
// maturity is truncated to the UTC day.
func (p *Pool) BondTicker(mint time.Time) string {
	return fmt.Sprintf("PT-%s-%s", p.Asset, p.Maturity(mint).Format(dateLayout))
}

// Maturity is the UTC day a bond minted at mint matures.
func (p *Pool) Maturity(mint time.Time) time.Time {
	y, mo, d := mint.UTC().AddDate(0, 0, p.DurationDays).Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// DaysRemaining returns the days until the bond matures as of now, clamped
// to [0, DurationDays]. The bond must belong to the pool's asset.
func (p *Pool) DaysRemaining(b *Bond, now time.Time) (decimal.Decimal, error) {
	if b.Asset != p.Asset {
		return decimal.Zero, fmt.Errorf("%w: %s in %s", ErrAssetMismatch, b.Ticker, p.Symbol)
	}
	return DaysRemaining(b.Maturity, now, p.DurationDays), nil
}

// DaysRemaining returns the fractional days from now to maturity, clamped
// to [0, durationDays].
func DaysRemaining(maturity, now time.Time, durationDays int) decimal.Decimal {
	hours := decimal.NewFromFloat(maturity.Sub(now).Hours())
	days := hours.Div(decimal.NewFromInt(24)).Round(8)
	if days.IsNegative() {
		return decimal.Zero
	}
	if limit := decimal.NewFromInt(int64(durationDays)); days.GreaterThan(limit) {
		return limit
	}
	return days
}
