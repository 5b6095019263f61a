package rest

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ekurt/marketfeed/internal/model"
)

// Snapshot is a full order book as served by the REST API.
type Snapshot struct {
	Instrument string
	Bids       []model.PriceLevel
	Asks       []model.PriceLevel
	Timestamp  int64 // venue timestamp, ms
}

type snapshotResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Timestamp int64      `json:"timestamp"`
		Bids      [][]string `json:"bids"`
		Asks      [][]string `json:"asks"`
	} `json:"data"`
}

// FetchSnapshot retrieves the current order book for one instrument.
func (c *Client) FetchSnapshot(ctx context.Context, instrument string, limit int) (Snapshot, error) {
	query := url.Values{}
	query.Set("pairSymbol", instrument)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp snapshotResponse
	if err := c.get(ctx, "/api/v2/orderbook", query, weightSnapshot, false, &resp); err != nil {
		return Snapshot{}, fmt.Errorf("fetching snapshot for %s: %w", instrument, err)
	}
	if !resp.Success {
		return Snapshot{}, fmt.Errorf("fetching snapshot for %s: venue reported failure", instrument)
	}

	return Snapshot{
		Instrument: instrument,
		Bids:       parseLevels(resp.Data.Bids),
		Asks:       parseLevels(resp.Data.Asks),
		Timestamp:  resp.Data.Timestamp,
	}, nil
}

// Instrument describes one tradable pair.
type Instrument struct {
	Symbol         string `json:"name"`
	Base           string `json:"numerator"`
	Quote          string `json:"denominator"`
	Status         string `json:"status"`
	PriceScale     int    `json:"denominatorScale"`
	QuantityScale  int    `json:"numeratorScale"`
	HasFraction    bool   `json:"hasFraction"`
	MinTotalAmount string `json:"minTotalAmount"`
}

type exchangeInfoResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Symbols []Instrument `json:"symbols"`
	} `json:"data"`
}

// FetchInstruments retrieves the tradable instrument list.
func (c *Client) FetchInstruments(ctx context.Context) ([]Instrument, error) {
	var resp exchangeInfoResponse
	if err := c.get(ctx, "/api/v2/server/exchangeinfo", nil, weightInstruments, false, &resp); err != nil {
		return nil, fmt.Errorf("fetching instruments: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("fetching instruments: venue reported failure")
	}
	return resp.Data.Symbols, nil
}

// parseLevels converts [["price","qty"], ...] pairs, skipping malformed
// entries.
func parseLevels(pairs [][]string) []model.PriceLevel {
	out := make([]model.PriceLevel, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) < 2 {
			continue
		}
		price, errP := strconv.ParseFloat(pair[0], 64)
		qty, errQ := strconv.ParseFloat(pair[1], 64)
		if errP != nil || errQ != nil {
			continue
		}
		out = append(out, model.PriceLevel{Price: price, Quantity: qty})
	}
	return out
}
