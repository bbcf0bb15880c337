package payment

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSign(t *testing.T) {
	sig := Sign("secret", "order_1", "pay_1")
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, Sign("secret", "order_1", "pay_1"))
	assert.NotEqual(t, sig, Sign("secret", "order_1", "pay_2"))
	assert.NotEqual(t, sig, Sign("other", "order_1", "pay_1"))
}

type fakeOrders struct {
	got   map[string]interface{}
	body  map[string]interface{}
	err   error
	delay time.Duration
}

func (f *fakeOrders) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.got = data
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.body, f.err
}

func newTestRazorpay(t *testing.T, orders *fakeOrders, timeout time.Duration) *RazorpayGateway {
	t.Helper()
	g, err := NewRazorpayGateway(Config{KeyID: "rzp_test_key", KeySecret: "shh", Timeout: timeout}, zap.NewNop())
	require.NoError(t, err)
	g.orders = orders
	return g
}

func TestRazorpayGateway_CreateOrder(t *testing.T) {
	orders := &fakeOrders{body: map[string]interface{}{
		"id": "order_ABC", "amount": float64(300000), "currency": "INR", "status": "created",
	}}
	g := newTestRazorpay(t, orders, 0)

	order, err := g.CreateOrder(context.Background(), OrderRequest{Amount: 300000, Currency: "INR", Receipt: "TC-ABC234"})
	require.NoError(t, err)
	assert.Equal(t, "order_ABC", order.ID)
	assert.Equal(t, int64(300000), order.Amount)
	assert.Equal(t, "INR", order.Currency)
	assert.Equal(t, "TC-ABC234", orders.got["receipt"])
	assert.Equal(t, int64(300000), orders.got["amount"])
	assert.Equal(t, 1, orders.got["payment_capture"])
}

func TestRazorpayGateway_CreateOrderErrors(t *testing.T) {
	tests := []struct {
		name     string
		orders   *fakeOrders
		rejected bool
	}{
		{
			name:     "api error",
			orders:   &fakeOrders{err: errors.New("BAD_REQUEST_ERROR: amount too low")},
			rejected: true,
		},
		{
			name:     "empty order id",
			orders:   &fakeOrders{body: map[string]interface{}{"status": "created"}},
			rejected: true,
		},
		{
			name:   "transport failure",
			orders: &fakeOrders{err: &url.Error{Op: "Post", URL: "https://api.razorpay.com/v1/orders", Err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestRazorpay(t, tt.orders, 0)
			_, err := g.CreateOrder(context.Background(), OrderRequest{Amount: 1, Currency: "INR"})
			require.Error(t, err)
			if tt.rejected {
				assert.ErrorIs(t, err, ErrGatewayRejected)
			} else {
				assert.NotErrorIs(t, err, ErrGatewayRejected)
			}
		})
	}
}

func TestRazorpayGateway_CreateOrderTimeout(t *testing.T) {
	orders := &fakeOrders{
		body:  map[string]interface{}{"id": "order_late"},
		delay: 500 * time.Millisecond,
	}
	g := newTestRazorpay(t, orders, 20*time.Millisecond)

	start := time.Now()
	_, err := g.CreateOrder(context.Background(), OrderRequest{Amount: 150000, Currency: "INR"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrGatewayRejected, "transport failures are not rejections")
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestRazorpayGateway_Verify(t *testing.T) {
	g, err := NewRazorpayGateway(Config{KeyID: "k", KeySecret: "s"}, zap.NewNop())
	require.NoError(t, err)

	ok, err := g.Verify(context.Background(), Verification{OrderRef: "o", PaymentRef: "p", Signature: Sign("s", "o", "p")})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Verify(context.Background(), Verification{OrderRef: "o", PaymentRef: "p", Signature: "deadbeef"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNew(t *testing.T) {
	_, err := New(Config{Provider: ProviderRazorpay}, zap.NewNop())
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = New(Config{Provider: "paypal"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrUnknownProvider)

	g, err := New(Config{Provider: ProviderStripe, KeyID: "pk_test", KeySecret: "sk_test"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, ProviderStripe, g.Provider())
	assert.Equal(t, "pk_test", g.KeyID())

	g, err = New(Config{Provider: ProviderMock}, zap.NewNop())
	require.NoError(t, err)
	mock := g.(*MockGateway)
	order, err := mock.CreateOrder(context.Background(), OrderRequest{Amount: 150000, Currency: "INR"})
	require.NoError(t, err)
	ok, err := mock.Verify(context.Background(), Verification{OrderRef: order.ID, PaymentRef: "pay_1", Signature: mock.SignFor(order.ID, "pay_1")})
	require.NoError(t, err)
	assert.True(t, ok)
}
