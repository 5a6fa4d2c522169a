// Package model defines the persistence and API records shared across the
// service. Every amount is a shopspring/decimal; pricing variants convert
// in and out at the edge.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Numeric variants a pool can be priced with.
const (
	NumericFloat = "float"
	NumericFixed = "fixed"
)

// Pricing models a pool can use.
const (
	ModelHyperdrive = "hyperdrive"
	ModelYieldSpace = "yieldspace"
)

// Pool is the persisted reserve snapshot and configuration of one pool.
type Pool struct {
	ID                   string `json:"id" db:"id"`
	Symbol               string `json:"symbol" db:"symbol"` // HD-{ASSET}-{DAYS}D
	Asset                string `json:"asset" db:"asset"`
	Numeric              string `json:"numeric" db:"numeric"`
	Model                string `json:"model" db:"model"`
	PositionDurationDays int    `json:"position_duration_days" db:"position_duration_days"`

	TimeStretch    decimal.Decimal `json:"time_stretch" db:"time_stretch"`
	ShareReserves  decimal.Decimal `json:"share_reserves" db:"share_reserves"`
	BondReserves   decimal.Decimal `json:"bond_reserves" db:"bond_reserves"`
	LPTotalSupply  decimal.Decimal `json:"lp_total_supply" db:"lp_total_supply"`
	SharePrice     decimal.Decimal `json:"share_price" db:"share_price"`
	InitSharePrice decimal.Decimal `json:"init_share_price" db:"init_share_price"`

	CurveFee      decimal.Decimal `json:"curve_fee_multiple" db:"curve_fee_multiple"`
	FlatFee       decimal.Decimal `json:"flat_fee_multiple" db:"flat_fee_multiple"`
	GovernanceFee decimal.Decimal `json:"governance_fee_multiple" db:"governance_fee_multiple"`

	BaseBuffer        decimal.Decimal `json:"base_buffer" db:"base_buffer"`
	BondBuffer        decimal.Decimal `json:"bond_buffer" db:"bond_buffer"`
	LongsOutstanding  decimal.Decimal `json:"longs_outstanding" db:"longs_outstanding"`
	ShortsOutstanding decimal.Decimal `json:"shorts_outstanding" db:"shorts_outstanding"`
	GovFeesAccrued    decimal.Decimal `json:"gov_fees_accrued" db:"gov_fees_accrued"`

	// SpotPrice and APR are the full-term quote after the last state
	// change. They are null when the reserves leave them undefined.
	SpotPrice decimal.NullDecimal `json:"spot_price" db:"spot_price"`
	APR       decimal.NullDecimal `json:"apr" db:"apr"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LedgerEntry is an immutable record of one executed action.
// Base, Longs, Shorts and LPShares are the signed changes to the user.
type LedgerEntry struct {
	ID         string          `json:"id" db:"id"`
	UserID     string          `json:"user_id" db:"user_id"`
	PoolID     string          `json:"pool_id" db:"pool_id"`
	Action     string          `json:"action" db:"action"`
	BondTicker string          `json:"bond_ticker,omitempty" db:"bond_ticker"`
	Base       decimal.Decimal `json:"base" db:"base"`
	Longs      decimal.Decimal `json:"longs" db:"longs"`
	Shorts     decimal.Decimal `json:"shorts" db:"shorts"`
	LPShares   decimal.Decimal `json:"lp_shares" db:"lp_shares"`
	Fee        decimal.Decimal `json:"fee" db:"fee"`
	GovFee     decimal.Decimal `json:"gov_fee" db:"gov_fee"`
	Timestamp  time.Time       `json:"timestamp" db:"timestamp"`
}

// Position is a user's aggregate holdings in one pool.
type Position struct {
	UserID   string          `json:"user_id"`
	PoolID   string          `json:"pool_id"`
	Symbol   string          `json:"symbol"`
	Asset    string          `json:"asset"`
	Longs    decimal.Decimal `json:"longs"`
	Shorts   decimal.Decimal `json:"shorts"`
	LPShares decimal.Decimal `json:"lp_shares"`
	NetBase  decimal.Decimal `json:"net_base"` // base received minus base paid
	FeesPaid decimal.Decimal `json:"fees_paid"`
}

// Portfolio aggregates all positions for a user.
type Portfolio struct {
	UserID          string                     `json:"user_id"`
	Positions       []Position                 `json:"positions"`
	TotalLongs      decimal.Decimal            `json:"total_longs"`
	TotalShorts     decimal.Decimal            `json:"total_shorts"`
	NetBase         decimal.Decimal            `json:"net_base"`
	FeesPaid        decimal.Decimal            `json:"fees_paid"`
	ExposureByAsset map[string]decimal.Decimal `json:"exposure_by_asset"` // asset → longs + shorts
}

// Breakdown is a priced trade in decimals. Every amount is in the unit of
// the priced side.
type Breakdown struct {
	WithoutFeeOrSlippage decimal.Decimal `json:"without_fee_or_slippage"`
	WithoutFee           decimal.Decimal `json:"without_fee"`
	WithFee              decimal.Decimal `json:"with_fee"`
	CurveFee             decimal.Decimal `json:"curve_fee"`
	GovCurveFee          decimal.Decimal `json:"gov_curve_fee"`
	FlatFee              decimal.Decimal `json:"flat_fee"`
	GovFlatFee           decimal.Decimal `json:"gov_flat_fee"`
}

// Fee is the total trading fee.
func (b Breakdown) Fee() decimal.Decimal { return b.CurveFee.Add(b.FlatFee) }

// GovFee is the governance share of Fee.
func (b Breakdown) GovFee() decimal.Decimal { return b.GovCurveFee.Add(b.GovFlatFee) }

// MaxTrades are a pool's capacity bounds at the full term.
type MaxTrades struct {
	MaxLongBase   decimal.Decimal `json:"max_long_base"`
	MaxLongBonds  decimal.Decimal `json:"max_long_bonds"`
	MaxShortBase  decimal.Decimal `json:"max_short_base"`
	MaxShortBonds decimal.Decimal `json:"max_short_bonds"`
}
