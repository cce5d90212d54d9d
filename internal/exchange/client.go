package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"autotrader/internal/models"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// Gateway is the trading side of the venue. Ordinary venue-side
// rejections come back as errors carrying the venue's message; none of
// the calls panic.
type Gateway interface {
	GetOrder(ctx context.Context, symbol string, orderID int64) (models.Order, error)
	PlaceOrder(ctx context.Context, symbol string, side models.OrderSide, quantity, price float64, timeInForce string) (models.Order, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) (models.Order, error)
	// startTime zero means latest bars.
	GetKlines(ctx context.Context, symbol string, interval models.Interval, startTime time.Time, limit int) ([]models.Candle, error)
	GetSymbolFilters(ctx context.Context, symbol string) (models.SymbolFilters, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}

type BinanceClient struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
}

func NewBinanceClient(baseURL, apiKey, apiSecret string) *BinanceClient {
	return &BinanceClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type orderResponse struct {
	OrderID     int64  `json:"orderId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Status      string `json:"status"`
	Price       string `json:"price"`
	OrigQty     string `json:"origQty"`
	ExecutedQty string `json:"executedQty"`
}

func (r orderResponse) toOrder() models.Order {
	price, _ := strconv.ParseFloat(r.Price, 64)
	orig, _ := strconv.ParseFloat(r.OrigQty, 64)
	executed, _ := strconv.ParseFloat(r.ExecutedQty, 64)
	return models.Order{
		ID:          r.OrderID,
		Symbol:      r.Symbol,
		Side:        models.OrderSide(r.Side),
		Status:      models.OrderStatus(r.Status),
		Price:       price,
		OrigQty:     orig,
		ExecutedQty: executed,
	}
}

func (c *BinanceClient) GetOrder(ctx context.Context, symbol string, orderID int64) (models.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	body, err := c.signedRequest(ctx, http.MethodGet, "/api/v3/order", params)
	if err != nil {
		return models.Order{}, err
	}

	var resp orderResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return models.Order{}, errors.Wrap(err, "decode order")
	}
	return resp.toOrder(), nil
}

func (c *BinanceClient) PlaceOrder(
	ctx context.Context,
	symbol string,
	side models.OrderSide,
	quantity, price float64,
	timeInForce string,
) (models.Order, error) {
	if timeInForce == "" {
		timeInForce = "GTC"
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", "LIMIT")
	params.Set("timeInForce", timeInForce)
	params.Set("quantity", formatFloat(quantity))
	params.Set("price", formatFloat(price))

	body, err := c.signedRequest(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return models.Order{}, err
	}

	var resp orderResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return models.Order{}, errors.Wrap(err, "decode order")
	}
	return resp.toOrder(), nil
}

func (c *BinanceClient) CancelOrder(ctx context.Context, symbol string, orderID int64) (models.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	body, err := c.signedRequest(ctx, http.MethodDelete, "/api/v3/order", params)
	if err != nil {
		return models.Order{}, err
	}

	var resp orderResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return models.Order{}, errors.Wrap(err, "decode order")
	}
	return resp.toOrder(), nil
}

func (c *BinanceClient) GetKlines(ctx context.Context, symbol string, interval models.Interval, startTime time.Time, limit int) ([]models.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", string(interval))
	params.Set("limit", strconv.Itoa(limit))
	if !startTime.IsZero() {
		params.Set("startTime", strconv.FormatInt(startTime.UnixMilli(), 10))
	}

	body, err := c.request(ctx, http.MethodGet, "/api/v3/klines", params)
	if err != nil {
		return nil, err
	}

	// rows: [openTime, open, high, low, close, volume, closeTime, ...]
	var rows [][]interface{}
	if err := sonic.Unmarshal(body, &rows); err != nil {
		return nil, errors.Wrap(err, "decode klines")
	}

	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}
		openTime, ok := row[0].(float64)
		if !ok {
			continue
		}
		closeTime, _ := row[6].(float64)
		open, err1 := floatField(row[1])
		high, err2 := floatField(row[2])
		low, err3 := floatField(row[3])
		closep, err4 := floatField(row[4])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		candles = append(candles, models.Candle{
			Symbol:   symbol,
			Interval: interval,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closep,
			Start:    time.UnixMilli(int64(openTime)),
			End:      time.UnixMilli(int64(closeTime)),
			Final:    time.Now().After(time.UnixMilli(int64(closeTime))),
		})
	}
	return candles, nil
}

// SetLeverage changes the position leverage for a symbol. Leverage is
// venue-side state on the futures account; the orders themselves carry
// no leverage field.
func (c *BinanceClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))

	_, err := c.signedRequest(ctx, http.MethodPost, "/fapi/v1/leverage", params)
	return err
}

func (c *BinanceClient) GetSymbolFilters(ctx context.Context, symbol string) (models.SymbolFilters, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.request(ctx, http.MethodGet, "/api/v3/exchangeInfo", params)
	if err != nil {
		return models.SymbolFilters{}, err
	}

	var resp struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType string `json:"filterType"`
				MinPrice   string `json:"minPrice"`
				MaxPrice   string `json:"maxPrice"`
				TickSize   string `json:"tickSize"`
				MinQty     string `json:"minQty"`
				MaxQty     string `json:"maxQty"`
				StepSize   string `json:"stepSize"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return models.SymbolFilters{}, errors.Wrap(err, "decode exchangeInfo")
	}
	if len(resp.Symbols) == 0 {
		return models.SymbolFilters{}, errors.Errorf("symbol %s not found", symbol)
	}

	var filters models.SymbolFilters
	for _, f := range resp.Symbols[0].Filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			filters.PriceStep, _ = strconv.ParseFloat(f.TickSize, 64)
			filters.MinPrice, _ = strconv.ParseFloat(f.MinPrice, 64)
			filters.MaxPrice, _ = strconv.ParseFloat(f.MaxPrice, 64)
		case "LOT_SIZE":
			filters.QtyStep, _ = strconv.ParseFloat(f.StepSize, 64)
			filters.MinQty, _ = strconv.ParseFloat(f.MinQty, 64)
			filters.MaxQty, _ = strconv.ParseFloat(f.MaxQty, 64)
		}
	}
	return filters, nil
}

func (c *BinanceClient) signedRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("signature", c.sign(params.Encode()))
	return c.request(ctx, method, path, params)
}

func (c *BinanceClient) request(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	var reqBody io.Reader
	if method == http.MethodGet {
		reqURL += "?" + params.Encode()
	} else {
		reqBody = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if err := sonic.Unmarshal(body, &apiErr); err == nil && apiErr.Msg != "" {
			return nil, errors.Errorf("venue rejected %s %s: %s (code %d)", method, path, apiErr.Msg, apiErr.Code)
		}
		return nil, errors.Errorf("%s %s: http %d", method, path, resp.StatusCode)
	}
	return body, nil
}

func (c *BinanceClient) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func floatField(v interface{}) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, errors.Errorf("unexpected kline field %v", v)
	}
	return strconv.ParseFloat(s, 64)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ Gateway = (*BinanceClient)(nil)
