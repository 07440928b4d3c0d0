package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
)

const (
	walletGatewayName = "wallet"
	signatureHeader   = "X-Signature"
)

type WalletOptions struct {
	BaseURL    string
	MerchantID string
	Secret     string

	// CallbackURL is where the gateway sends the shopper back with a signed result.
	CallbackURL string

	// LenientSignature logs callback signature mismatches instead of rejecting them.
	LenientSignature bool

	Timeout time.Duration
	Client  *http.Client
}

// WalletGateway integrates the regional wallet gateway. Requests and callbacks
// are authenticated with HMAC-SHA256 over a shared secret.
type WalletGateway struct {
	opts   WalletOptions
	client *jsonClient
	logger *slog.Logger
}

func NewWalletGateway(opts WalletOptions, logger *slog.Logger) *WalletGateway {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &WalletGateway{
		opts:   opts,
		client: newJSONClient(walletGatewayName, opts.Client, opts.Timeout),
		logger: logger,
	}
}

func (g *WalletGateway) Method() domain.PaymentMethod {
	return domain.PaymentMethodWallet
}

type walletInitRequest struct {
	MerchantID    string `json:"merchantId"`
	TrackID       string `json:"trackId"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	ResponseURL   string `json:"responseUrl"`
	ErrorURL      string `json:"errorUrl"`
	CustomerName  string `json:"customerName,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	CustomerPhone string `json:"customerPhone,omitempty"`
}

type walletInitResponse struct {
	Result     string `json:"result"`
	PaymentID  string `json:"paymentId"`
	PaymentURL string `json:"paymentUrl"`
	ErrorText  string `json:"errorText"`
}

type walletInquiryRequest struct {
	MerchantID string `json:"merchantId"`
	TrackID    string `json:"trackId"`
}

type walletInquiryResponse struct {
	Result        string          `json:"result"`
	Status        string          `json:"status"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	ErrorText     string          `json:"errorText"`
}

func (g *WalletGateway) CreateSession(ctx context.Context, order *domain.Order, customer domain.CustomerDetails) (domain.PaymentSession, error) {
	payload := walletInitRequest{
		MerchantID:    g.opts.MerchantID,
		TrackID:       order.ID,
		Amount:        domain.FormatMoney(order.TotalAmount, order.Currency),
		Currency:      order.Currency,
		ResponseURL:   g.opts.CallbackURL,
		ErrorURL:      g.opts.CallbackURL,
		CustomerName:  customer.Name,
		CustomerEmail: customer.Email,
		CustomerPhone: customer.Phone,
	}

	var resp walletInitResponse
	status, err := g.postSigned(ctx, "/payment/init", payload, &resp)
	if err != nil {
		return domain.PaymentSession{}, err
	}

	if status >= http.StatusBadRequest || !strings.EqualFold(resp.Result, "SUCCESS") || resp.PaymentURL == "" {
		reason := resp.ErrorText
		if reason == "" {
			reason = fmt.Sprintf("status %d result %q", status, resp.Result)
		}
		return domain.PaymentSession{}, domain.NewGatewayRejected(walletGatewayName, reason)
	}

	return domain.PaymentSession{
		Gateway:       walletGatewayName,
		SessionID:     resp.PaymentID,
		TransactionID: resp.PaymentID,
		PaymentURL:    resp.PaymentURL,
	}, nil
}

// Verify trusts a signed gateway callback; an unsigned request (client poll)
// triggers a signed server-side inquiry instead.
func (g *WalletGateway) Verify(ctx context.Context, order *domain.Order, callback domain.CallbackPayload) (domain.Verification, error) {
	if callback.Signed() {
		return g.verifyCallback(ctx, order, callback)
	}
	return g.inquire(ctx, order)
}

func (g *WalletGateway) verifyCallback(ctx context.Context, order *domain.Order, callback domain.CallbackPayload) (domain.Verification, error) {
	trusted := true
	expected := g.sign([]byte(CallbackSigningString(order.ID, callback)))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(callback.Signature))) {
		if !g.opts.LenientSignature {
			return domain.Verification{}, fmt.Errorf("%w: order %s", domain.ErrSignatureMismatch, order.ID)
		}
		g.logger.Warn("wallet callback signature mismatch accepted",
			"order_id", order.ID,
			"transaction_id", callback.TransactionID)
		trusted = false
	}

	if callback.Amount != "" {
		amount, err := decimal.NewFromString(callback.Amount)
		if err != nil || !domain.RoundMoney(amount, order.Currency).Equal(order.TotalAmount) {
			return domain.Verification{
				Outcome:   domain.OutcomeDeclined,
				Reference: callback.TransactionID,
				Reason:    fmt.Sprintf("amount mismatch: callback %q, order %s", callback.Amount, order.TotalAmount),
			}, nil
		}
	}

	verification := walletOutcome(callback.Status, callback.TransactionID)
	if verification.Outcome == domain.OutcomeApproved && (callback.Amount == "" || !trusted) {
		// an approval without a checked amount or signature is confirmed server-side
		g.logger.Info("wallet approval confirmed by inquiry",
			"order_id", order.ID,
			"amount_present", callback.Amount != "",
			"signature_valid", trusted)
		return g.inquire(ctx, order)
	}
	return verification, nil
}

func (g *WalletGateway) inquire(ctx context.Context, order *domain.Order) (domain.Verification, error) {
	var resp walletInquiryResponse
	status, err := g.postSigned(ctx, "/payment/inquiry", walletInquiryRequest{
		MerchantID: g.opts.MerchantID,
		TrackID:    order.ID,
	}, &resp)
	if err != nil {
		return domain.Verification{}, err
	}

	if status == http.StatusNotFound {
		return domain.Verification{Outcome: domain.OutcomePending, Reason: "transaction unknown to gateway"}, nil
	}
	if status >= http.StatusBadRequest {
		return domain.Verification{}, domain.NewGatewayUnavailable(walletGatewayName, fmt.Errorf("inquiry status %d: %s", status, resp.ErrorText))
	}

	v := walletOutcome(resp.Status, resp.TransactionID)
	if v.Outcome == domain.OutcomeApproved && !domain.RoundMoney(resp.Amount, order.Currency).Equal(order.TotalAmount) {
		return domain.Verification{
			Outcome:   domain.OutcomeDeclined,
			Reference: resp.TransactionID,
			Reason:    fmt.Sprintf("amount mismatch: gateway %s, order %s", resp.Amount, order.TotalAmount),
		}, nil
	}
	return v, nil
}

func walletOutcome(status, transactionID string) domain.Verification {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "CAPTURED", "APPROVED", "SUCCESS":
		return domain.Verification{Outcome: domain.OutcomeApproved, Reference: transactionID}
	case "NOT CAPTURED", "DENIED", "FAILED", "CANCELED", "CANCELLED", "DECLINED":
		return domain.Verification{Outcome: domain.OutcomeDeclined, Reference: transactionID, Reason: status}
	default:
		return domain.Verification{Outcome: domain.OutcomePending, Reason: status}
	}
}

// CallbackSigningString is the canonical text the gateway signs for a callback.
func CallbackSigningString(orderID string, callback domain.CallbackPayload) string {
	return strings.Join([]string{orderID, callback.TransactionID, callback.Status, callback.Amount}, "|")
}

// SignCallback computes the signature the gateway attaches to a callback.
func (g *WalletGateway) SignCallback(orderID string, callback domain.CallbackPayload) string {
	return g.sign([]byte(CallbackSigningString(orderID, callback)))
}

func (g *WalletGateway) sign(message []byte) string {
	mac := hmac.New(sha256.New, []byte(g.opts.Secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *WalletGateway) postSigned(ctx context.Context, path string, payload, out any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode wallet request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, g.opts.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build wallet request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, g.sign(body))

	return g.client.do(ctx, req, out)
}
