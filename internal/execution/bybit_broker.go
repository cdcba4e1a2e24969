package execution

import (
	"bytes"
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

	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func httpBodyReader(payload []byte) *bytes.Reader {
	return bytes.NewReader(payload)
}

const (
	bybitMainnetREST = "https://api.bybit.com"
	bybitTestnetREST = "https://api-testnet.bybit.com"
	bybitRecvWindow  = "5000"
)

// BybitConfig holds the credentials and environment for the live broker.
// Request-signing details besides the key pair are out of scope; this is
// reduced to exactly the surface order placement and balance queries need.
type BybitConfig struct {
	APIKey    string
	APISecret string
	Testnet   bool
}

// BybitBroker implements Broker against Bybit v5's linear-futures REST
// API: HMAC-SHA256 over a canonical query string, API key in a header,
// targeting the `category=linear` order/wallet endpoints.
type BybitBroker struct {
	logger     *zap.Logger
	apiKey     string
	apiSecret  string
	baseURL    string
	httpClient *http.Client
}

// NewBybitBroker constructs a live Bybit linear-futures broker.
func NewBybitBroker(logger *zap.Logger, cfg BybitConfig) *BybitBroker {
	base := bybitMainnetREST
	if cfg.Testnet {
		base = bybitTestnetREST
	}
	return &BybitBroker{
		logger:     logger.Named("bybit-broker"),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (b *BybitBroker) PlaceOrder(ctx context.Context, order types.Order) (types.Order, error) {
	body := map[string]any{
		"category":  "linear",
		"symbol":    order.Symbol,
		"side":      bybitSide(order.Side),
		"orderType": bybitOrderType(order.Type),
		"qty":       order.Quantity.String(),
		"reduceOnly": order.ReduceOnly,
	}
	if order.Type == types.OrderTypeLimit {
		body["price"] = order.Price.String()
		body["timeInForce"] = "GTC"
	} else {
		body["timeInForce"] = "IOC"
	}
	if order.ClientOrderID != "" {
		body["orderLinkId"] = order.ClientOrderID
	}

	var resp bybitOrderResponse
	if err := b.signedPOST(ctx, "/v5/order/create", body, &resp); err != nil {
		return types.Order{}, fmt.Errorf("bybit: place order: %w", err)
	}

	order.ID = resp.Result.OrderID
	order.Status = types.OrderStatusNew
	order.CreatedAt = time.Now()
	order.UpdatedAt = time.Now()
	return order, nil
}

func (b *BybitBroker) CancelOrder(ctx context.Context, symbol, orderID string) error {
	body := map[string]any{
		"category": "linear",
		"symbol":   symbol,
		"orderId":  orderID,
	}
	var resp bybitEnvelope
	if err := b.signedPOST(ctx, "/v5/order/cancel", body, &resp); err != nil {
		return fmt.Errorf("bybit: cancel order: %w", err)
	}
	return nil
}

func (b *BybitBroker) GetOrder(ctx context.Context, symbol, orderID string) (types.Order, error) {
	params := url.Values{}
	params.Set("category", "linear")
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	var resp bybitOrderStatusResponse
	if err := b.signedGET(ctx, "/v5/order/realtime", params, &resp); err != nil {
		return types.Order{}, fmt.Errorf("bybit: get order: %w", err)
	}
	if len(resp.Result.List) == 0 {
		return types.Order{}, fmt.Errorf("bybit: order %s not found", orderID)
	}
	return resp.Result.List[0].toOrder(), nil
}

func (b *BybitBroker) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("category", "linear")
	params.Set("symbol", symbol)

	var resp bybitTickerResponse
	if err := b.publicGET(ctx, "/v5/market/tickers", params, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("bybit: get ticker: %w", err)
	}
	if len(resp.Result.List) == 0 {
		return decimal.Zero, fmt.Errorf("bybit: no ticker for %s", symbol)
	}
	return decimal.NewFromString(resp.Result.List[0].LastPrice)
}

func (b *BybitBroker) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("accountType", "UNIFIED")

	var resp bybitWalletResponse
	if err := b.signedGET(ctx, "/v5/account/wallet-balance", params, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("bybit: wallet balance: %w", err)
	}
	if len(resp.Result.List) == 0 {
		return decimal.Zero, fmt.Errorf("bybit: empty wallet balance response")
	}
	return decimal.NewFromString(resp.Result.List[0].TotalAvailableBalance)
}

func bybitSide(s types.OrderSide) string {
	if s == types.OrderSideBuy {
		return "Buy"
	}
	return "Sell"
}

func bybitOrderType(t types.OrderType) string {
	if t == types.OrderTypeLimit {
		return "Limit"
	}
	return "Market"
}

func (b *BybitBroker) sign(payload string, timestamp string) string {
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(timestamp + b.apiKey + bybitRecvWindow + payload))
	return hex.EncodeToString(h.Sum(nil))
}

func (b *BybitBroker) setAuthHeaders(req *http.Request, payload string) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("X-BAPI-API-KEY", b.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", ts)
	req.Header.Set("X-BAPI-RECV-WINDOW", bybitRecvWindow)
	req.Header.Set("X-BAPI-SIGN", b.sign(payload, ts))
}

func (b *BybitBroker) signedPOST(ctx context.Context, path string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, httpBodyReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	b.setAuthHeaders(req, string(payload))
	return b.do(req, out)
}

func (b *BybitBroker) signedGET(ctx context.Context, path string, params url.Values, out any) error {
	query := params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path+"?"+query, nil)
	if err != nil {
		return err
	}
	b.setAuthHeaders(req, query)
	return b.do(req, out)
}

func (b *BybitBroker) publicGET(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	return b.do(req, out)
}

func (b *BybitBroker) do(req *http.Request, out any) error {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bybit: http %d: %s", resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("bybit: decode response: %w", err)
	}
	return nil
}

type bybitEnvelope struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
}

type bybitOrderResponse struct {
	bybitEnvelope
	Result struct {
		OrderID string `json:"orderId"`
	} `json:"result"`
}

type bybitOrderRow struct {
	OrderID     string `json:"orderId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price"`
	OrderStatus string `json:"orderStatus"`
	CumExecQty  string `json:"cumExecQty"`
	AvgPrice    string `json:"avgPrice"`
}

func (r bybitOrderRow) toOrder() types.Order {
	filled, _ := decimal.NewFromString(r.CumExecQty)
	avg, _ := decimal.NewFromString(r.AvgPrice)
	qty, _ := decimal.NewFromString(r.Qty)
	price, _ := decimal.NewFromString(r.Price)

	side := types.OrderSideBuy
	if r.Side == "Sell" {
		side = types.OrderSideSell
	}
	orderType := types.OrderTypeLimit
	if r.OrderType == "Market" {
		orderType = types.OrderTypeMarket
	}

	return types.Order{
		ID:           r.OrderID,
		Symbol:       r.Symbol,
		Side:         side,
		Type:         orderType,
		Quantity:     qty,
		Price:        price,
		Status:       bybitStatus(r.OrderStatus),
		FilledQty:    filled,
		AvgFillPrice: avg,
		UpdatedAt:    time.Now(),
	}
}

func bybitStatus(s string) types.OrderStatus {
	switch s {
	case "Filled":
		return types.OrderStatusFilled
	case "PartiallyFilled":
		return types.OrderStatusPartiallyFilled
	case "Cancelled", "Deactivated":
		return types.OrderStatusCancelled
	case "Rejected":
		return types.OrderStatusRejected
	default:
		return types.OrderStatusNew
	}
}

type bybitOrderStatusResponse struct {
	bybitEnvelope
	Result struct {
		List []bybitOrderRow `json:"list"`
	} `json:"result"`
}

type bybitTickerRow struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
}

type bybitTickerResponse struct {
	bybitEnvelope
	Result struct {
		List []bybitTickerRow `json:"list"`
	} `json:"result"`
}

type bybitWalletRow struct {
	TotalAvailableBalance string `json:"totalAvailableBalance"`
}

type bybitWalletResponse struct {
	bybitEnvelope
	Result struct {
		List []bybitWalletRow `json:"list"`
	} `json:"result"`
}
