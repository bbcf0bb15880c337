package payment

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

const mockSecret = "mock-payment-secret"

// MockGateway issues local order ids and accepts any payment signed with its
// secret via Sign. It is used in development and tests.
type MockGateway struct {
	secret string
}

// NewMockGateway creates a MockGateway. An empty secret selects a fixed development secret.
func NewMockGateway(secret string) *MockGateway {
	if secret == "" {
		secret = mockSecret
	}
	return &MockGateway{secret: secret}
}

func (g *MockGateway) CreateOrder(_ context.Context, req OrderRequest) (*Order, error) {
	return &Order{
		ID:       "order_mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14],
		Amount:   req.Amount,
		Currency: req.Currency,
	}, nil
}

func (g *MockGateway) Verify(_ context.Context, v Verification) (bool, error) {
	return validSignature(g.secret, v), nil
}

// SignFor produces a valid signature for this gateway.
func (g *MockGateway) SignFor(orderRef, paymentRef string) string {
	return Sign(g.secret, orderRef, paymentRef)
}

func (g *MockGateway) KeyID() string    { return "rzp_test_mock" }
func (g *MockGateway) Provider() string { return ProviderMock }
