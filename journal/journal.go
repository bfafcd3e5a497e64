// Package journal is the append-only record of filled trades and the
// equity seen after them.
package journal

import (
	"errors"
	"time"
)

// TradeRecord is one filled order as it was reconciled.
type TradeRecord struct {
	ID       string
	Time     time.Time
	Symbol   string
	OrderID  int64
	Side     string
	Action   string
	Strategy string
	Regime   string

	Price       float64
	Qty         float64
	Notional    float64
	Leverage    float64
	RealizedPnL float64
	// PnLPct is realized PnL as a percentage of the fill's initial margin.
	PnLPct     float64
	Commission float64
	Wallet     float64

	Reason string
	Text   string
}

type EquitySnapshot struct {
	Time          time.Time
	WalletBalance float64
	MarginBalance float64
	UsedMargin    float64
	FreeMargin    float64
	UnrealizedPnL float64
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

type multi []Journal

// Multi writes every record to all journals.
func Multi(js ...Journal) Journal {
	return multi(js)
}

func (m multi) RecordTrade(t TradeRecord) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordTrade(t))
	}
	return errors.Join(errs...)
}

func (m multi) RecordEquity(e EquitySnapshot) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordEquity(e))
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.Close())
	}
	return errors.Join(errs...)
}
