package exchange

import "time"

// Side is the direction of an order or position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PositionSide describes the live position direction.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
	PositionFlat  PositionSide = "FLAT"
)

// OrderType is the order type accepted by CreateOrder.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// Kline is a single OHLCV bar. Field names are normalized at the
// adapter boundary regardless of the wire format the exchange uses
// (entry_price vs entryPrice, etc. never leak past this package).
type Kline struct {
	OpenTime int64   `json:"openTime"`
	Open     float64 `json:"open,string"`
	High     float64 `json:"high,string"`
	Low      float64 `json:"low,string"`
	Close    float64 `json:"close,string"`
	Volume   float64 `json:"volume,string"`
}

// Position is the normalized view of a live derivatives position.
type Position struct {
	Symbol        string
	Side          PositionSide
	SizeBase      float64
	Leverage      int
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnL float64
	LiqPrice      float64
}

// IsFlat reports whether the position carries no size.
func (p Position) IsFlat() bool {
	return p.SizeBase == 0
}

// OrderParams describes a CreateOrder request. SL/TP are attached
// orders the exchange manages server-side; only one TP level is wired
// through — additional take-profit levels from an Analysis are
// informational only, per the reconciler contract.
type OrderParams struct {
	Symbol     string
	Side       Side
	Type       OrderType
	Quantity   float64
	Price      float64 // required for OrderTypeLimit
	ReduceOnly bool
	StopLoss   float64 // 0 means none
	TakeProfit float64 // 0 means none
}

// OrderResult is returned by CreateOrder.
type OrderResult struct {
	OrderID  int64
	Symbol   string
	Status   string
	FilledAt time.Time
}

// LeverageResult is returned by SetLeverage.
type LeverageResult struct {
	Symbol   string
	Leverage int
}
