package journal

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// DefaultPageSize is used when ListTrades gets a non-positive limit
const DefaultPageSize = 50

// ListTrades returns one page of a user's trades
func (c *Client) ListTrades(ctx context.Context, userID string, page, limit int) (*TradePage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var out TradePage
	if err := c.get(ctx, "/trades/user/"+escape(userID), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AllTrades walks every page of a user's trades
func (c *Client) AllTrades(ctx context.Context, userID string) ([]Trade, error) {
	var trades []Trade
	for page := 1; ; page++ {
		p, err := c.ListTrades(ctx, userID, page, DefaultPageSize)
		if err != nil {
			return nil, err
		}
		trades = append(trades, p.Trades...)
		if len(p.Trades) == 0 || page >= p.TotalPages {
			return trades, nil
		}
	}
}

// UpdateJournal stores the journaling flags and rating of a trade
func (c *Client) UpdateJournal(ctx context.Context, tradeID string, update JournalUpdate) (*Trade, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	var out Trade
	if err := c.put(ctx, "/trades/"+escape(tradeID)+"/journal", update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserAnalytics returns the precomputed analytics payload of a user
func (c *Client) UserAnalytics(ctx context.Context, userID string) (*AnalyticsSummary, error) {
	var out AnalyticsSummary
	if err := c.get(ctx, "/api/analytics/user/"+escape(userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Insights returns the backend's coaching insights for the current user
func (c *Client) Insights(ctx context.Context) ([]Insight, error) {
	var out InsightList
	if err := c.get(ctx, "/api/analytics/insights", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// KlineQuery selects a candle window
type KlineQuery struct {
	Symbol    string
	Interval  string
	StartTime time.Time
	EndTime   time.Time
}

// Klines returns OHLC candles for chart overlays
func (c *Client) Klines(ctx context.Context, q KlineQuery) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", q.Symbol)
	if q.Interval == "" {
		q.Interval = "1h"
	}
	params.Set("interval", q.Interval)
	if !q.StartTime.IsZero() {
		params.Set("startTime", strconv.FormatInt(q.StartTime.UnixMilli(), 10))
	}
	if !q.EndTime.IsZero() {
		params.Set("endTime", strconv.FormatInt(q.EndTime.UnixMilli(), 10))
	}

	var out Klines
	if err := c.get(ctx, "/api/market-data/klines", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TradeWindow builds a kline query covering a trade with padding on both
// sides. Open trades extend to now.
func TradeWindow(t Trade, interval string, pad time.Duration) KlineQuery {
	end := time.Now()
	if t.IsClosed() {
		end = *t.CloseTime
	}
	return KlineQuery{
		Symbol:    t.Symbol,
		Interval:  interval,
		StartTime: t.OpenTime.Add(-pad),
		EndTime:   end.Add(pad),
	}
}
