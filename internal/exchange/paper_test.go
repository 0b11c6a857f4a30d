package exchange

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"futures-orderbot/internal/strategy"
)

func TestPaperGateway_Lifecycle(t *testing.T) {
	gw := NewPaperGateway(nil)
	ctx := context.Background()

	market := strategy.OrderRequest{Symbol: "BTCUSDT", Side: strategy.SideBuy, Kind: strategy.KindMarket, Quantity: decimal.NewFromInt(1)}
	limit := strategy.OrderRequest{Symbol: "BTCUSDT", Side: strategy.SideSell, Kind: strategy.KindLimit, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(110), TimeInForce: strategy.TimeInForceGTC}

	first, err := gw.PlaceOrder(ctx, market, "a")
	if err != nil {
		t.Fatalf("PlaceOrder market: %v", err)
	}
	second, err := gw.PlaceOrder(ctx, limit, "b")
	if err != nil {
		t.Fatalf("PlaceOrder limit: %v", err)
	}
	if first.OrderID != "1" || second.OrderID != "2" {
		t.Fatalf("expected sequential ids, got %s/%s", first.OrderID, second.OrderID)
	}

	record, err := gw.GetOrder(ctx, "BTCUSDT", first.OrderID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if record.Status != "FILLED" || !record.ExecutedQty.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected filled market order, got %+v", record)
	}

	if _, err := gw.CancelOrder(ctx, "BTCUSDT", first.OrderID); Classify(err) != KindExchange || err == nil {
		t.Errorf("expected exchange error cancelling filled order, got %v", err)
	}
	if res, err := gw.CancelOrder(ctx, "BTCUSDT", second.OrderID); err != nil || res.Status != "CANCELED" {
		t.Errorf("expected cancel to succeed, got %v %v", res, err)
	}

	records, err := gw.ListOrders(ctx, "BTCUSDT", 1)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(records) != 1 || records[0].OrderID != second.OrderID {
		t.Errorf("expected most recent order only, got %+v", records)
	}

	if _, err := gw.GetOrder(ctx, "ETHUSDT", first.OrderID); err == nil {
		t.Errorf("expected missing order error")
	}
}

func TestPaperGateway_RejectHookAndValidation(t *testing.T) {
	gw := NewPaperGateway(nil)
	rejection := NewExchangeError(-2019, "Margin is insufficient.", nil)
	gw.Reject = func(req strategy.OrderRequest) error {
		if req.Side == strategy.SideSell {
			return rejection
		}
		return nil
	}

	req := strategy.OrderRequest{Symbol: "BTCUSDT", Side: strategy.SideSell, Kind: strategy.KindMarket, Quantity: decimal.NewFromInt(1)}
	if _, err := gw.PlaceOrder(context.Background(), req, ""); !errors.Is(err, rejection) {
		t.Fatalf("expected rejection, got %v", err)
	}

	bad := strategy.OrderRequest{Symbol: "BTCUSDT", Side: strategy.SideBuy, Kind: strategy.KindLimit, Quantity: decimal.NewFromInt(1)}
	if _, err := gw.PlaceOrder(context.Background(), bad, ""); Classify(err) != KindExchange {
		t.Fatalf("expected exchange error for invalid request, got %v", err)
	}

	if len(gw.Orders()) != 0 {
		t.Fatalf("rejected orders must not be recorded")
	}
}
