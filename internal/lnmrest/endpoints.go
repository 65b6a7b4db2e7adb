package lnmrest

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// CandlePage is one page of the venue's candle history endpoint, as
// returned over the wire (prices as raw floats; the repository layer
// converts to lnm.Price on ingest).
type CandlePage struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// GetCandles requests a single page of historical candles ending at to,
// at the given resolution, capped at limit rows. Per-page validation
// (minute alignment, strict descending order, no duplicates) is the
// caller's responsibility; this method is a thin transport wrapper.
func (c *Client) GetCandles(ctx context.Context, resolution string, to time.Time, limit int) ([]CandlePage, error) {
	params := url.Values{}
	params.Set("resolution", resolution)
	params.Set("to", strconv.FormatInt(to.UnixMilli(), 10))
	params.Set("limit", strconv.Itoa(limit))

	var out []CandlePage
	if err := c.do(ctx, "GET", "/v2/futures/history/price/btc-usd/candles", params, nil, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FundingSettlementPage is one funding settlement event as returned by the
// venue.
type FundingSettlementPage struct {
	Time        int64   `json:"time"`
	FixingPrice float64 `json:"fixingPrice"`
	Rate        float64 `json:"fundingRate"`
}

// GetFundingSettlements requests funding settlement history in [from, to].
func (c *Client) GetFundingSettlements(ctx context.Context, from, to time.Time, limit int) ([]FundingSettlementPage, error) {
	params := url.Values{}
	params.Set("from", strconv.FormatInt(from.UnixMilli(), 10))
	params.Set("to", strconv.FormatInt(to.UnixMilli(), 10))
	params.Set("limit", strconv.Itoa(limit))

	var out []FundingSettlementPage
	if err := c.do(ctx, "GET", "/v2/futures/history/funding", params, nil, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TickerPage is the venue's current index/last price ticker.
type TickerPage struct {
	LastPrice  float64 `json:"lastPrice"`
	IndexPrice float64 `json:"index"`
}

func (c *Client) GetTicker(ctx context.Context) (*TickerPage, error) {
	var out TickerPage
	if err := c.do(ctx, "GET", "/v2/futures/ticker", nil, nil, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TradePage mirrors a venue trade record as returned by the futures CRUD
// endpoints.
type TradePage struct {
	ID                string   `json:"id"`
	Side              string   `json:"side"`
	Type              string   `json:"type"`
	Quantity          uint64   `json:"quantity"`
	Margin            uint64   `json:"margin"`
	Leverage           float64  `json:"leverage"`
	Price             float64  `json:"price"`
	Liquidation       float64  `json:"liquidation"`
	Stoploss          *float64 `json:"stoploss"`
	Takeprofit        *float64 `json:"takeprofit"`
	ExitPrice         *float64 `json:"exit_price"`
	OpeningFee        uint64   `json:"opening_fee"`
	ClosingFee        uint64   `json:"closing_fee"`
	MaintenanceMargin uint64   `json:"maintenance_margin"`
	CreationTS        int64    `json:"creation_ts"`
	MarketFilledTS    *int64   `json:"market_filled_ts"`
	ClosedTS          *int64   `json:"closed_ts"`
	Running           bool     `json:"running"`
	Open              bool     `json:"open"`
	Closed            bool     `json:"closed"`
	Canceled          bool     `json:"canceled"`
}

// NewTradeRequest is the signed order-placement body for open_long/open_short.
type NewTradeRequest struct {
	Side       string   `json:"side"`
	Type       string   `json:"type"`
	Leverage   float64  `json:"leverage"`
	Quantity   *uint64  `json:"quantity,omitempty"`
	Margin     *uint64  `json:"margin,omitempty"`
	Price      *float64 `json:"price,omitempty"`
	Stoploss   *float64 `json:"stoploss,omitempty"`
	Takeprofit *float64 `json:"takeprofit,omitempty"`
}

func (c *Client) NewTrade(ctx context.Context, req NewTradeRequest) (*TradePage, error) {
	var out TradePage
	if err := c.do(ctx, "POST", "/v2/futures", nil, req, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CloseTrade(ctx context.Context, id string) (*TradePage, error) {
	params := url.Values{}
	params.Set("id", id)
	var out TradePage
	if err := c.do(ctx, "DELETE", "/v2/futures", params, nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CancelTrade(ctx context.Context, id string) error {
	params := url.Values{}
	params.Set("id", id)
	return c.do(ctx, "DELETE", "/v2/futures/cancel", params, nil, true, nil)
}

func (c *Client) CancelAll(ctx context.Context) error {
	return c.do(ctx, "DELETE", "/v2/futures/all/cancel", nil, nil, true, nil)
}

func (c *Client) CloseAll(ctx context.Context) error {
	return c.do(ctx, "DELETE", "/v2/futures/all/close", nil, nil, true, nil)
}

type UpdateStoplossRequest struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	Value    float64 `json:"value"`
}

func (c *Client) UpdateTrade(ctx context.Context, req UpdateStoplossRequest) (*TradePage, error) {
	var out TradePage
	if err := c.do(ctx, "PUT", "/v2/futures", nil, req, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type AddMarginRequest struct {
	ID     string `json:"id"`
	Amount uint64 `json:"amount"`
}

func (c *Client) AddMargin(ctx context.Context, req AddMarginRequest) (*TradePage, error) {
	var out TradePage
	if err := c.do(ctx, "POST", "/v2/futures/add-margin", nil, req, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type CashInRequest struct {
	ID     string `json:"id"`
	Amount uint64 `json:"amount"`
}

func (c *Client) CashIn(ctx context.Context, req CashInRequest) (*TradePage, error) {
	var out TradePage
	if err := c.do(ctx, "POST", "/v2/futures/cash-in", nil, req, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetRunningTrades(ctx context.Context) ([]TradePage, error) {
	params := url.Values{}
	params.Set("type", "running")
	var out []TradePage
	if err := c.do(ctx, "GET", "/v2/futures", params, nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetClosedTrades(ctx context.Context, limit int) ([]TradePage, error) {
	params := url.Values{}
	params.Set("type", "closed")
	params.Set("limit", strconv.Itoa(limit))
	var out []TradePage
	if err := c.do(ctx, "GET", "/v2/futures", params, nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AccountInfo is the venue's account balance response.
type AccountInfo struct {
	Balance uint64 `json:"balance"`
}

func (c *Client) GetAccount(ctx context.Context) (*AccountInfo, error) {
	var out AccountInfo
	if err := c.do(ctx, "GET", "/v2/user", nil, nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
