// Package domain defines the core types shared by the tick collector: tick
// kinds, tick records, resolved securities and the error taxonomy.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// TickResolution is the granularity of persisted tick timestamps. Cursor
// arithmetic ("last timestamp + 1 tick") advances by exactly this amount.
const TickResolution = time.Second

// TickKind selects which historical tick stream is retrieved.
type TickKind string

const (
	TickKindQuote TickKind = "BID_ASK"
	TickKindTrade TickKind = "TRADES"
)

// RetrievalKinds lists the kinds a collector walks for every ticker. The
// primary kind comes last so that catching it up completes the ticker.
var RetrievalKinds = []TickKind{TickKindQuote, TickKindTrade}

// ParseTickKind converts a configuration string into a TickKind.
func ParseTickKind(s string) (TickKind, error) {
	k := TickKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTickKind, s)
	}
	return k, nil
}

// Valid reports whether k is one of the supported kinds.
func (k TickKind) Valid() bool {
	return k == TickKindQuote || k == TickKindTrade
}

// Primary reports whether catching up this kind finishes a ticker.
func (k TickKind) Primary() bool { return k == TickKindTrade }

// Suffix returns the table-name suffix for the kind.
func (k TickKind) Suffix() string {
	switch k {
	case TickKindQuote:
		return "BA"
	case TickKindTrade:
		return "T"
	}
	return ""
}

// TableName returns the warehouse table holding ticks of kind for ticker,
// e.g. "AAPL_T" or "AAPL_BA".
func TableName(ticker string, kind TickKind) string {
	return strings.ToUpper(strings.TrimSpace(ticker)) + "_" + kind.Suffix()
}

// Tick is one market event. Trade fields are populated for TRADES, quote
// fields for BID_ASK; Order is assigned by the batch accumulator.
type Tick struct {
	Timestamp time.Time
	Order     int

	// Trade
	Price      float64
	Size       int64
	Exchange   string
	Conditions string

	// Quote
	BidPrice    float64
	BidSize     int64
	AskPrice    float64
	AskSize     int64
	BidPastLow  *bool
	AskPastHigh *bool
}

// Security is a ticker resolved to a concrete tradable instrument.
type Security struct {
	Symbol   string
	AssetID  string
	Name     string
	Exchange string
	Class    string
}

// String implements fmt.Stringer.
func (s Security) String() string {
	if s.Exchange == "" {
		return s.Symbol
	}
	return s.Symbol + "@" + s.Exchange
}

// NewsRecord is one press release extracted from a news file.
type NewsRecord struct {
	ReceivedTime    time.Time
	PublicationTime time.Time
	Ticker          string
	Exchange        string
	Title           string
	Distributor     string
	Headlines       string
	IndustryCodes   string
	Body            string
	Language        string
	FileName        string
}
