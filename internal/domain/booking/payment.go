package booking

// PaymentMethod is how the customer intends to pay.
type PaymentMethod string

const (
	PaymentUPI    PaymentMethod = "upi"
	PaymentCard   PaymentMethod = "card"
	PaymentWallet PaymentMethod = "wallet"
	PaymentCOD    PaymentMethod = "cod"
)

// IsValid returns true if the payment method is recognized.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentUPI, PaymentCard, PaymentWallet, PaymentCOD:
		return true
	}
	return false
}

// UsesGateway reports whether the method round-trips through the payment gateway.
// Cash on delivery does not.
func (m PaymentMethod) UsesGateway() bool {
	return m != PaymentCOD
}

// PaymentStatus tracks the money side of a booking, independently of BookingStatus.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// IsValid returns true if the payment status is recognized.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed:
		return true
	}
	return false
}
