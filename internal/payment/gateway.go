// Package payment adapts external payment providers to the two calls the
// booking lifecycle needs: create an order and verify a completed payment.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/razorpay/razorpay-go/utils"
	"go.uber.org/zap"
)

const (
	ProviderRazorpay = "razorpay"
	ProviderStripe   = "stripe"
	ProviderMock     = "mock"
)

var (
	ErrMissingCredentials = errors.New("payment gateway credentials are not configured")
	ErrUnknownProvider    = errors.New("unknown payment provider")
	ErrGatewayRejected    = errors.New("payment gateway rejected the request")
)

// OrderRequest is what the gateway needs to open an order.
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
}

// Order is the gateway's handle for an expected payment.
type Order struct {
	ID       string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	// ClientSecret is set by providers whose checkout needs one.
	ClientSecret string `json:"client_secret,omitempty"`
}

// Verification is the payload the client receives from checkout.
type Verification struct {
	OrderRef   string
	PaymentRef string
	Signature  string
}

// Gateway is an external payment provider. Both calls may block on the
// network; callers bound them with a context deadline. A transport failure is
// returned as an error, a rejected payment as false.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	Verify(ctx context.Context, v Verification) (bool, error)
	// KeyID is the public key the client-side checkout is initialised with.
	KeyID() string
	Provider() string
}

// Config selects and configures a provider.
type Config struct {
	Provider  string
	KeyID     string
	KeySecret string
	BaseURL   string
	Timeout   time.Duration
}

// New builds the gateway named by cfg.Provider.
func New(cfg Config, logger *zap.Logger) (Gateway, error) {
	switch cfg.Provider {
	case ProviderRazorpay:
		return NewRazorpayGateway(cfg, logger)
	case ProviderStripe:
		return NewStripeGateway(cfg, logger)
	case ProviderMock, "":
		logger.Warn("payment gateway running in mock mode")
		return NewMockGateway(cfg.KeySecret), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

// Sign computes the checkout signature for an order/payment pair:
// hex(HMAC-SHA256(secret, orderRef + "|" + paymentRef)). MockGateway signs
// with it; verification goes through the Razorpay SDK.
func Sign(secret, orderRef, paymentRef string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderRef + "|" + paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}

// validSignature checks a checkout signature with the Razorpay SDK verifier,
// which uses the same order|payment HMAC as Sign.
func validSignature(secret string, v Verification) bool {
	return utils.VerifyPaymentSignature(map[string]interface{}{
		"razorpay_order_id":   v.OrderRef,
		"razorpay_payment_id": v.PaymentRef,
	}, v.Signature, secret)
}
