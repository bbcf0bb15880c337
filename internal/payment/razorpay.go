package payment

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	"go.uber.org/zap"
)

// orderCreator is the slice of the Razorpay SDK used to open orders.
type orderCreator interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayGateway opens orders through the Razorpay SDK and verifies
// checkout signatures locally.
type RazorpayGateway struct {
	keyID     string
	keySecret string
	timeout   time.Duration
	orders    orderCreator
	logger    *zap.Logger
}

// NewRazorpayGateway creates a RazorpayGateway. Key id and secret are required.
func NewRazorpayGateway(cfg Config, logger *zap.Logger) (*RazorpayGateway, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, ErrMissingCredentials
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	return &RazorpayGateway{
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		timeout:   timeout,
		orders:    client.Order,
		logger:    logger.Named("razorpay"),
	}, nil
}

type createResult struct {
	body map[string]interface{}
	err  error
}

// CreateOrder opens a Razorpay order for the amount in paise. The SDK takes
// no context, so the call is bounded by ctx and the configured timeout here.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan createResult, 1)
	go func() {
		body, err := g.orders.Create(map[string]interface{}{
			"amount":          req.Amount,
			"currency":        req.Currency,
			"receipt":         req.Receipt,
			"payment_capture": 1,
		}, nil)
		done <- createResult{body: body, err: err}
	}()

	var res createResult
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("razorpay order request failed: %w", ctx.Err())
	case res = <-done:
	}

	if res.err != nil {
		var netErr net.Error
		if errors.As(res.err, &netErr) {
			return nil, fmt.Errorf("razorpay order request failed: %w", res.err)
		}
		g.logger.Warn("razorpay rejected order",
			zap.String("receipt", req.Receipt),
			zap.Error(res.err),
		)
		return nil, fmt.Errorf("%w: %v", ErrGatewayRejected, res.err)
	}

	order, err := orderFromBody(res.body)
	if err != nil {
		return nil, err
	}

	g.logger.Info("razorpay order created",
		zap.String("order_id", order.ID),
		zap.String("receipt", req.Receipt),
	)
	return order, nil
}

// orderFromBody reads the decoded JSON order. Numbers arrive as float64.
func orderFromBody(body map[string]interface{}) (*Order, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("%w: empty order id", ErrGatewayRejected)
	}
	order := &Order{ID: id}
	switch amount := body["amount"].(type) {
	case float64:
		order.Amount = int64(amount)
	case int64:
		order.Amount = amount
	case int:
		order.Amount = int64(amount)
	}
	order.Currency, _ = body["currency"].(string)
	return order, nil
}

// Verify checks the checkout signature. No network call is made.
func (g *RazorpayGateway) Verify(_ context.Context, v Verification) (bool, error) {
	return validSignature(g.keySecret, v), nil
}

func (g *RazorpayGateway) KeyID() string    { return g.keyID }
func (g *RazorpayGateway) Provider() string { return ProviderRazorpay }
