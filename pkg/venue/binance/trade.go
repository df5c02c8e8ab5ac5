package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"arena-api/pkg/venue"
)

// SetLeverage sets the initial leverage for symbol. The call is idempotent on
// the venue side and is retried on transient failures.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{
		"symbol":   []string{symbol},
		"leverage": []string{strconv.Itoa(leverage)},
	}
	var resp leverageResponse
	if err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/leverage", params, true, &resp); err != nil {
		return fmt.Errorf("binance: set leverage %s %dx: %w", symbol, leverage, err)
	}
	return nil
}

// PlaceMarketOrder submits a market order and returns the fill. The call is
// deliberately not retried: a timed-out submit may still have filled, and
// resubmitting would double the exposure. Reconciliation repairs that gap.
func (c *Client) PlaceMarketOrder(ctx context.Context, req venue.OrderRequest) (*venue.OrderResult, error) {
	params := url.Values{
		"symbol":           []string{req.Symbol},
		"side":             []string{string(req.Side)},
		"type":             []string{"MARKET"},
		"quantity":         []string{req.Quantity.String()},
		"newOrderRespType": []string{"RESULT"},
	}
	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	var resp orderResponse
	if err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/order", params, false, &resp); err != nil {
		return nil, fmt.Errorf("binance: place order %s %s: %w", req.Symbol, req.Side, err)
	}

	fillPrice, err := parseDecimal("avg price", resp.AvgPrice)
	if err != nil {
		return nil, err
	}
	executedQty, err := parseDecimal("executed qty", resp.ExecutedQty)
	if err != nil {
		return nil, err
	}

	return &venue.OrderResult{
		VenueOrderID:  resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Side:          venue.Side(resp.Side),
		FillPrice:     fillPrice,
		ExecutedQty:   executedQty,
		Status:        resp.Status,
	}, nil
}

// OpenPositions returns every non-flat position on the account. Client order
// ids are restored by scanning recent orders per symbol; a position whose
// opening order has aged out of the scan window is returned with an empty id.
func (c *Client) OpenPositions(ctx context.Context) ([]venue.VenuePosition, error) {
	var rows []positionRiskResponse
	if err := c.doSigned(ctx, http.MethodGet, "/fapi/v2/positionRisk", nil, true, &rows); err != nil {
		return nil, fmt.Errorf("binance: position risk: %w", err)
	}

	positions := make([]venue.VenuePosition, 0, len(rows))
	for _, row := range rows {
		amt, err := parseDecimal("position amt", row.PositionAmt)
		if err != nil {
			return nil, err
		}
		if amt.IsZero() {
			continue
		}
		entry, err := parseDecimal("entry price", row.EntryPrice)
		if err != nil {
			return nil, err
		}
		leverage, err := strconv.Atoi(row.Leverage)
		if err != nil {
			return nil, fmt.Errorf("binance: parse leverage %q: %w", row.Leverage, err)
		}

		side := venue.PositionLong
		if amt.Sign() < 0 {
			side = venue.PositionShort
		}
		pos := venue.VenuePosition{
			Symbol:     row.Symbol,
			Side:       side,
			Quantity:   amt.Abs(),
			EntryPrice: entry,
			Leverage:   leverage,
		}
		pos.ClientOrderID = c.correlateClientOrderID(ctx, pos)
		positions = append(positions, pos)
	}
	return positions, nil
}

// correlateClientOrderID finds the client order id of the order that opened
// pos: the most recent filled, non-reduce-only order on the entry side.
func (c *Client) correlateClientOrderID(ctx context.Context, pos venue.VenuePosition) string {
	entrySide := venue.SideBuy
	if pos.Side == venue.PositionShort {
		entrySide = venue.SideSell
	}

	params := url.Values{
		"symbol": []string{pos.Symbol},
		"limit":  []string{strconv.Itoa(c.correlationDepth)},
	}
	var orders []orderResponse
	if err := c.doSigned(ctx, http.MethodGet, "/fapi/v1/allOrders", params, true, &orders); err != nil {
		c.logf("binance: order scan for %s failed, position left untagged: %v", pos.Symbol, err)
		return ""
	}

	sort.Slice(orders, func(i, j int) bool { return orders[i].UpdateTime > orders[j].UpdateTime })
	for _, order := range orders {
		if order.Status != "FILLED" || order.ReduceOnly {
			continue
		}
		if venue.Side(order.Side) != entrySide {
			continue
		}
		return order.ClientOrderID
	}
	return ""
}

// PositionMode reports whether the account is in one-way position mode.
func (c *Client) PositionMode(ctx context.Context) (bool, error) {
	var resp positionModeResponse
	if err := c.doSigned(ctx, http.MethodGet, "/fapi/v1/positionSide/dual", nil, true, &resp); err != nil {
		return false, fmt.Errorf("binance: position mode: %w", err)
	}
	return !resp.DualSidePosition, nil
}
