package types

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// TradeSummary is one element of the GET /trades listing. Exactly one of the two
// shapes is populated per element, selected by Type.
type TradeSummary struct {
	*BinarySummary
	*UnderlyingSummary
}

// MarshalJSON flattens whichever shape is set
func (s TradeSummary) MarshalJSON() ([]byte, error) {
	if s.BinarySummary != nil {
		return json.Marshal(s.BinarySummary)
	}
	return json.Marshal(s.UnderlyingSummary)
}

// Kind reports "binary" or "underlying"
func (s TradeSummary) Kind() string {
	if s.BinarySummary != nil {
		return KindBinary
	}
	return KindUnderlying
}

type BinarySummary struct {
	Type        string      `json:"type"`
	ID          string      `json:"id"`
	Description string      `json:"description"`
	StakeA      int64       `json:"stake_a"`
	StakeB      int64       `json:"stake_b"`
	Status      TradeStatus `json:"status"`
	PartyA      string      `json:"party_a"`
	PartyB      string      `json:"party_b"`
	Outcome     *bool       `json:"outcome,omitempty"`
}

type UnderlyingSummary struct {
	Type            string       `json:"type"`
	ID              string       `json:"id"`
	Description     string       `json:"description"`
	LotSize         json.Number  `json:"lot_size"`
	TradePrice      json.Number  `json:"trade_price"`
	Status          TradeStatus  `json:"status"`
	LongParty       string       `json:"long_party"`
	ShortParty      string       `json:"short_party"`
	SettlementPrice *json.Number `json:"settlement_price,omitempty"`
}

// NewBinarySummary renders a binary trade with its parties' names
func NewBinarySummary(t BinaryTrade, partyA, partyB string) TradeSummary {
	return TradeSummary{BinarySummary: &BinarySummary{
		Type:        KindBinary,
		ID:          t.ID,
		Description: t.Description,
		StakeA:      t.StakeA,
		StakeB:      t.StakeB,
		Status:      t.Status,
		PartyA:      partyA,
		PartyB:      partyB,
		Outcome:     t.Outcome,
	}}
}

// NewUnderlyingSummary renders an underlying trade with its parties' names.
// Decimals are emitted as JSON numbers without going through float64.
func NewUnderlyingSummary(t UnderlyingTrade, longParty, shortParty string) TradeSummary {
	s := &UnderlyingSummary{
		Type:        KindUnderlying,
		ID:          t.ID,
		Description: t.Description,
		LotSize:     number(t.LotSize),
		TradePrice:  number(t.TradePrice),
		Status:      t.Status,
		LongParty:   longParty,
		ShortParty:  shortParty,
	}
	if t.SettlementPrice != nil {
		n := number(*t.SettlementPrice)
		s.SettlementPrice = &n
	}
	return TradeSummary{UnderlyingSummary: s}
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
