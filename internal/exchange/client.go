// Package exchange is the facade the core pipeline uses to reach the
// derivatives exchange: OHLCV windows, balance, position, leverage,
// order placement and cancellation. Anything the wire format exposes
// beyond that (funding rates, order books, listen keys) is not the
// core's concern and stays out of this interface.
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is the inbound contract the analysis-to-execution pipeline
// depends on. Symbol is always the uppercase concatenated form
// (BTCUSDT), never colon-suffixed.
type Client interface {
	GetOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Kline, error)
	GetBalance(ctx context.Context) (float64, error)
	GetPosition(ctx context.Context, symbol string) (Position, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) (LeverageResult, error)
	CreateOrder(ctx context.Context, params OrderParams) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
}

// RESTClient is the live implementation, talking to the Binance
// Futures-style REST surface with HMAC-SHA256 request signing.
type RESTClient struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// NewRESTClient builds a client against either the live or testnet
// Binance Futures endpoint depending on testnet.
func NewRESTClient(apiKey, secretKey string, testnet bool) *RESTClient {
	base := "https://fapi.binance.com"
	if testnet {
		base = "https://testnet.binancefuture.com"
	}
	return &RESTClient{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *RESTClient) sign(params url.Values) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(params.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *RESTClient) do(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("signature", c.sign(params))
	}

	endpoint := c.baseURL + path
	var req *http.Request
	var err error
	if method == http.MethodGet || method == http.MethodDelete {
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+params.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, nil)
		req.URL.RawQuery = params.Encode()
	}
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &TransientError{Op: path, Err: fmt.Errorf("status %d: %s", resp.StatusCode, body)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, body)
	}
	return body, nil
}

func (c *RESTClient) GetOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", timeframe)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.do(ctx, http.MethodGet, "/fapi/v1/klines", params, false)
	if err != nil {
		return nil, err
	}

	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse klines: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrMarketDataUnavailable
	}

	klines := make([]Kline, len(raw))
	for i, r := range raw {
		klines[i] = Kline{
			OpenTime: int64(asFloat(r[0])),
			Open:     asNumericString(r[1]),
			High:     asNumericString(r[2]),
			Low:      asNumericString(r[3]),
			Close:    asNumericString(r[4]),
			Volume:   asNumericString(r[5]),
		}
	}
	return klines, nil
}

func (c *RESTClient) GetBalance(ctx context.Context) (float64, error) {
	body, err := c.do(ctx, http.MethodGet, "/fapi/v2/balance", nil, true)
	if err != nil {
		return 0, err
	}
	var assets []struct {
		Asset            string `json:"asset"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := json.Unmarshal(body, &assets); err != nil {
		return 0, fmt.Errorf("parse balance: %w", err)
	}
	for _, a := range assets {
		if a.Asset == "USDT" {
			f, _ := strconv.ParseFloat(a.AvailableBalance, 64)
			return f, nil
		}
	}
	return 0, fmt.Errorf("USDT asset not found in balance response")
}

func (c *RESTClient) GetPosition(ctx context.Context, symbol string) (Position, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.do(ctx, http.MethodGet, "/fapi/v2/positionRisk", params, true)
	if err != nil {
		return Position{}, err
	}
	var raw []struct {
		Symbol           string `json:"symbol"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		MarkPrice        string `json:"markPrice"`
		UnRealizedProfit string `json:"unRealizedProfit"`
		LiquidationPrice string `json:"liquidationPrice"`
		Leverage         string `json:"leverage"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Position{}, fmt.Errorf("parse position: %w", err)
	}
	if len(raw) == 0 {
		return Position{Symbol: symbol, Side: PositionFlat}, nil
	}
	r := raw[0]
	amt, _ := strconv.ParseFloat(r.PositionAmt, 64)
	side := PositionFlat
	if amt > 0 {
		side = PositionLong
	} else if amt < 0 {
		side = PositionShort
	}
	entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
	mark, _ := strconv.ParseFloat(r.MarkPrice, 64)
	pnl, _ := strconv.ParseFloat(r.UnRealizedProfit, 64)
	liq, _ := strconv.ParseFloat(r.LiquidationPrice, 64)
	lev, _ := strconv.Atoi(r.Leverage)

	size := amt
	if size < 0 {
		size = -size
	}

	return Position{
		Symbol:        symbol,
		Side:          side,
		SizeBase:      size,
		Leverage:      lev,
		EntryPrice:    entry,
		MarkPrice:     mark,
		UnrealizedPnL: pnl,
		LiqPrice:      liq,
	}, nil
}

func (c *RESTClient) SetLeverage(ctx context.Context, symbol string, leverage int) (LeverageResult, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))

	body, err := c.do(ctx, http.MethodPost, "/fapi/v1/leverage", params, true)
	if err != nil {
		return LeverageResult{}, err
	}
	var resp struct {
		Symbol   string `json:"symbol"`
		Leverage int    `json:"leverage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return LeverageResult{}, fmt.Errorf("parse leverage response: %w", err)
	}
	return LeverageResult{Symbol: resp.Symbol, Leverage: resp.Leverage}, nil
}

func (c *RESTClient) CreateOrder(ctx context.Context, p OrderParams) (OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", p.Symbol)
	params.Set("side", string(p.Side))
	params.Set("type", string(p.Type))
	params.Set("quantity", strconv.FormatFloat(p.Quantity, 'f', -1, 64))
	if p.Type == OrderTypeLimit {
		params.Set("price", strconv.FormatFloat(p.Price, 'f', -1, 64))
		params.Set("timeInForce", "GTC")
	}
	if p.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	body, err := c.do(ctx, http.MethodPost, "/fapi/v1/order", params, true)
	if err != nil {
		return OrderResult{}, err
	}
	var resp struct {
		OrderId int64  `json:"orderId"`
		Symbol  string `json:"symbol"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return OrderResult{}, fmt.Errorf("parse order response: %w", err)
	}

	result := OrderResult{OrderID: resp.OrderId, Symbol: resp.Symbol, Status: resp.Status, FilledAt: time.Now()}

	if p.StopLoss > 0 {
		if _, err := c.attachConditional(ctx, p, "STOP_MARKET", p.StopLoss); err != nil {
			return result, fmt.Errorf("attach stop loss: %w", err)
		}
	}
	if p.TakeProfit > 0 {
		if _, err := c.attachConditional(ctx, p, "TAKE_PROFIT_MARKET", p.TakeProfit); err != nil {
			return result, fmt.Errorf("attach take profit: %w", err)
		}
	}
	return result, nil
}

func (c *RESTClient) attachConditional(ctx context.Context, p OrderParams, orderType string, stopPrice float64) (OrderResult, error) {
	closeSide := SideSell
	if p.Side == SideSell {
		closeSide = SideBuy
	}
	params := url.Values{}
	params.Set("symbol", p.Symbol)
	params.Set("side", string(closeSide))
	params.Set("type", orderType)
	params.Set("stopPrice", strconv.FormatFloat(stopPrice, 'f', -1, 64))
	params.Set("closePosition", "true")

	body, err := c.do(ctx, http.MethodPost, "/fapi/v1/order", params, true)
	if err != nil {
		return OrderResult{}, err
	}
	var resp struct {
		OrderId int64  `json:"orderId"`
		Status  string `json:"status"`
	}
	json.Unmarshal(body, &resp)
	return OrderResult{OrderID: resp.OrderId, Status: resp.Status}, nil
}

func (c *RESTClient) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	_, err := c.do(ctx, http.MethodDelete, "/fapi/v1/order", params, true)
	return err
}

func asFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

func asNumericString(v interface{}) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case float64:
		return t
	default:
		return 0
	}
}
