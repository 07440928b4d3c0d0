package domain

import (
	"errors"
	"fmt"
)

// PaymentSession is the gateway state carried on a PENDING order.
type PaymentSession struct {
	Gateway          string `json:"gateway"`
	SessionID        string `json:"sessionId"`
	SuccessIndicator string `json:"successIndicator,omitempty"`
	TransactionID    string `json:"transactionId,omitempty"`
	PaymentURL       string `json:"paymentUrl,omitempty"`
	CheckoutURL      string `json:"checkoutUrl,omitempty"`

	// SettleImmediately marks sessions that need no external round-trip.
	SettleImmediately bool `json:"-"`
}

// CallbackPayload is whatever the gateway redirect or the polling client sent back.
type CallbackPayload struct {
	ResultIndicator string
	TransactionID   string
	Status          string
	Amount          string
	Signature       string
	Gateway         string
}

// Signed reports whether the payload claims to come from the gateway itself.
func (p CallbackPayload) Signed() bool {
	return p.Signature != ""
}

type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeApproved
	OutcomeDeclined
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApproved:
		return "approved"
	case OutcomeDeclined:
		return "declined"
	default:
		return "pending"
	}
}

// Verification is a gateway's answer about one order.
type Verification struct {
	Outcome   Outcome
	Reference string
	Reason    string
}

// TerminalStatus maps a decisive outcome onto a payment status.
func (v Verification) TerminalStatus() (PaymentStatus, bool) {
	switch v.Outcome {
	case OutcomeApproved:
		return PaymentStatusApproved, true
	case OutcomeDeclined:
		return PaymentStatusFailed, true
	}
	return PaymentStatusPending, false
}

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment gateway rejected")
)

type GatewayErrorKind int

const (
	GatewayUnavailable GatewayErrorKind = iota
	GatewayRejected
)

// GatewayError classifies a failure talking to an external provider.
type GatewayError struct {
	Gateway string
	Kind    GatewayErrorKind
	Reason  string
	Err     error
}

func NewGatewayUnavailable(gateway string, err error) *GatewayError {
	return &GatewayError{Gateway: gateway, Kind: GatewayUnavailable, Reason: "unreachable", Err: err}
}

func NewGatewayRejected(gateway, reason string) *GatewayError {
	return &GatewayError{Gateway: gateway, Kind: GatewayRejected, Reason: reason}
}

func (e *GatewayError) Error() string {
	kind := "unavailable"
	if e.Kind == GatewayRejected {
		kind = "rejected"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s gateway %s: %s: %v", e.Gateway, kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s gateway %s: %s", e.Gateway, kind, e.Reason)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func (e *GatewayError) Is(target error) bool {
	switch target {
	case ErrGatewayUnavailable:
		return e.Kind == GatewayUnavailable
	case ErrGatewayRejected:
		return e.Kind == GatewayRejected
	}
	return false
}

// NotificationDispatchError is logged by the payment flow and never returned to clients.
type NotificationDispatchError struct {
	OrderID string
	Err     error
}

func (e *NotificationDispatchError) Error() string {
	return fmt.Sprintf("notify order %s: %v", e.OrderID, e.Err)
}

func (e *NotificationDispatchError) Unwrap() error {
	return e.Err
}
