package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// StripeGateway maps orders onto Stripe PaymentIntents. Checkout confirms the
// intent client-side, so verification re-reads the intent instead of checking
// a signature.
type StripeGateway struct {
	api            *client.API
	publishableKey string
	logger         *zap.Logger
}

// NewStripeGateway creates a StripeGateway. KeySecret is the Stripe secret key
// and KeyID the publishable key handed to clients.
func NewStripeGateway(cfg Config, logger *zap.Logger) (*StripeGateway, error) {
	if cfg.KeySecret == "" {
		return nil, ErrMissingCredentials
	}
	var backends *stripe.Backends
	if cfg.BaseURL != "" {
		backends = &stripe.Backends{
			API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{URL: stripe.String(cfg.BaseURL)}),
		}
	}
	return &StripeGateway{
		api:            client.New(cfg.KeySecret, backends),
		publishableKey: cfg.KeyID,
		logger:         logger.Named("stripe"),
	}, nil
}

// CreateOrder creates a PaymentIntent for the amount in the smallest currency unit.
func (g *StripeGateway) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String("Tank cleaning " + req.Receipt),
	}
	params.Context = ctx
	params.AddMetadata("receipt", req.Receipt)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, g.mapError("create payment intent", err)
	}

	g.logger.Info("stripe payment intent created",
		zap.String("payment_intent", pi.ID),
		zap.String("receipt", req.Receipt),
	)
	return &Order{
		ID:           pi.ID,
		Amount:       pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		ClientSecret: pi.ClientSecret,
	}, nil
}

// Verify reports whether the intent has succeeded. PaymentRef, when given,
// must name the intent's latest charge.
func (g *StripeGateway) Verify(ctx context.Context, v Verification) (bool, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(v.OrderRef, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return false, nil
		}
		return false, g.mapError("retrieve payment intent", err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return false, nil
	}
	if v.PaymentRef != "" && v.PaymentRef != pi.ID && (pi.LatestCharge == nil || pi.LatestCharge.ID != v.PaymentRef) {
		return false, nil
	}
	return true, nil
}

func (g *StripeGateway) mapError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 {
		g.logger.Warn("stripe rejected request",
			zap.String("op", op),
			zap.String("code", string(stripeErr.Code)),
			zap.Int("status", stripeErr.HTTPStatusCode),
		)
		return fmt.Errorf("%w: %s", ErrGatewayRejected, stripeErr.Msg)
	}
	return fmt.Errorf("stripe %s failed: %w", op, err)
}

func (g *StripeGateway) KeyID() string    { return g.publishableKey }
func (g *StripeGateway) Provider() string { return ProviderStripe }
