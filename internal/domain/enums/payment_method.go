package enums

type PaymentMethod string

const (
	PaymentMethodGateway   PaymentMethod = "gateway"
	PaymentMethodSimulated PaymentMethod = "simulated"
	PaymentMethodCallback  PaymentMethod = "callback"
)
