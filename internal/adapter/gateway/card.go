package gateway

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
)

const cardGatewayName = "card"

type CardOptions struct {
	BaseURL      string
	MerchantID   string
	APIPassword  string
	MerchantName string

	// ReturnURL receives the shopper after checkout; orderId is appended as a query parameter.
	ReturnURL string

	// CheckoutURL is the script the storefront loads to render the hosted checkout.
	CheckoutURL string

	Timeout time.Duration
	Client  *http.Client
}

// CardGateway talks to a hosted-checkout card gateway REST API.
type CardGateway struct {
	opts   CardOptions
	client *jsonClient
	logger *slog.Logger
}

func NewCardGateway(opts CardOptions, logger *slog.Logger) *CardGateway {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &CardGateway{
		opts:   opts,
		client: newJSONClient(cardGatewayName, opts.Client, opts.Timeout),
		logger: logger,
	}
}

func (g *CardGateway) Method() domain.PaymentMethod {
	return domain.PaymentMethodCard
}

type cardSessionRequest struct {
	APIOperation string           `json:"apiOperation"`
	Interaction  cardInteraction  `json:"interaction"`
	Order        cardOrderRequest `json:"order"`
}

type cardInteraction struct {
	Operation string `json:"operation"`
	ReturnURL string `json:"returnUrl"`
	Merchant  struct {
		Name string `json:"name"`
	} `json:"merchant"`
}

type cardOrderRequest struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

type cardError struct {
	Cause       string `json:"cause"`
	Explanation string `json:"explanation"`
}

type cardSessionResponse struct {
	Result  string `json:"result"`
	Session struct {
		ID string `json:"id"`
	} `json:"session"`
	SuccessIndicator string    `json:"successIndicator"`
	Error            cardError `json:"error"`
}

type cardOrderResponse struct {
	Result              string          `json:"result"`
	Status              string          `json:"status"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	TotalCapturedAmount decimal.Decimal `json:"totalCapturedAmount"`
	Transaction         []struct {
		Result      string `json:"result"`
		Transaction struct {
			ID      string `json:"id"`
			Receipt string `json:"receipt"`
		} `json:"transaction"`
	} `json:"transaction"`
	Error cardError `json:"error"`
}

func (g *CardGateway) CreateSession(ctx context.Context, order *domain.Order, customer domain.CustomerDetails) (domain.PaymentSession, error) {
	reqBody := cardSessionRequest{
		APIOperation: "INITIATE_CHECKOUT",
		Order: cardOrderRequest{
			ID:          order.ID,
			Amount:      domain.FormatMoney(order.TotalAmount, order.Currency),
			Currency:    order.Currency,
			Description: fmt.Sprintf("Order %s (%d items)", order.ID, len(order.Items)),
		},
	}
	reqBody.Interaction.Operation = "PURCHASE"
	reqBody.Interaction.ReturnURL = g.returnURL(order.ID)
	reqBody.Interaction.Merchant.Name = g.opts.MerchantName

	body, err := json.Marshal(reqBody)
	if err != nil {
		return domain.PaymentSession{}, fmt.Errorf("encode session request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, g.merchantURL("session"), bytes.NewReader(body))
	if err != nil {
		return domain.PaymentSession{}, fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	g.authorize(req)

	var resp cardSessionResponse
	status, err := g.client.do(ctx, req, &resp)
	if err != nil {
		return domain.PaymentSession{}, err
	}

	if status >= http.StatusBadRequest || resp.Result != "SUCCESS" || resp.Session.ID == "" {
		reason := resp.Error.Explanation
		if reason == "" {
			reason = fmt.Sprintf("status %d result %q", status, resp.Result)
		}
		return domain.PaymentSession{}, domain.NewGatewayRejected(cardGatewayName, reason)
	}

	return domain.PaymentSession{
		Gateway:          cardGatewayName,
		SessionID:        resp.Session.ID,
		SuccessIndicator: resp.SuccessIndicator,
		CheckoutURL:      g.opts.CheckoutURL,
	}, nil
}

// Verify never trusts the browser-supplied resultIndicator on its own: the
// order is always re-read from the gateway before a decision is made.
func (g *CardGateway) Verify(ctx context.Context, order *domain.Order, callback domain.CallbackPayload) (domain.Verification, error) {
	if callback.ResultIndicator != "" && !g.indicatorMatches(order, callback.ResultIndicator) {
		g.logger.Warn("card result indicator does not match session",
			"order_id", order.ID,
			"session_id", order.Session.SessionID)
	}

	req, err := http.NewRequest(http.MethodGet, g.merchantURL("order", order.ID), nil)
	if err != nil {
		return domain.Verification{}, fmt.Errorf("build order request: %w", err)
	}
	g.authorize(req)

	var resp cardOrderResponse
	status, err := g.client.do(ctx, req, &resp)
	if err != nil {
		return domain.Verification{}, err
	}

	if status == http.StatusNotFound || (status >= http.StatusBadRequest && resp.Error.Cause == "INVALID_REQUEST") {
		// the shopper never reached payment
		return domain.Verification{Outcome: domain.OutcomePending, Reason: "order unknown to gateway"}, nil
	}
	if status >= http.StatusBadRequest {
		return domain.Verification{}, domain.NewGatewayUnavailable(cardGatewayName, fmt.Errorf("status %d: %s", status, resp.Error.Explanation))
	}

	return g.decide(order, resp), nil
}

func (g *CardGateway) decide(order *domain.Order, resp cardOrderResponse) domain.Verification {
	reference := order.ID
	for _, txn := range resp.Transaction {
		if txn.Result == "SUCCESS" && txn.Transaction.ID != "" {
			reference = txn.Transaction.ID
			if txn.Transaction.Receipt != "" {
				reference = txn.Transaction.Receipt
			}
		}
	}

	switch strings.ToUpper(resp.Status) {
	case "CAPTURED", "PURCHASED":
		if !strings.EqualFold(resp.Currency, order.Currency) {
			return domain.Verification{Outcome: domain.OutcomeDeclined, Reference: reference,
				Reason: fmt.Sprintf("currency mismatch: gateway %s, order %s", resp.Currency, order.Currency)}
		}
		captured := resp.TotalCapturedAmount
		if captured.IsZero() {
			captured = resp.Amount
		}
		if !domain.RoundMoney(captured, order.Currency).Equal(order.TotalAmount) {
			return domain.Verification{Outcome: domain.OutcomeDeclined, Reference: reference,
				Reason: fmt.Sprintf("amount mismatch: gateway %s, order %s", captured, order.TotalAmount)}
		}
		return domain.Verification{Outcome: domain.OutcomeApproved, Reference: reference}
	case "FAILED", "DECLINED", "CANCELLED", "EXPIRED", "VOIDED":
		return domain.Verification{Outcome: domain.OutcomeDeclined, Reference: reference, Reason: resp.Status}
	default:
		return domain.Verification{Outcome: domain.OutcomePending, Reason: resp.Status}
	}
}

func (g *CardGateway) indicatorMatches(order *domain.Order, indicator string) bool {
	expected := order.Session.SuccessIndicator
	return expected != "" && subtle.ConstantTimeCompare([]byte(expected), []byte(indicator)) == 1
}

func (g *CardGateway) merchantURL(parts ...string) string {
	escaped := make([]string, 0, len(parts)+2)
	escaped = append(escaped, "merchant", url.PathEscape(g.opts.MerchantID))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return g.opts.BaseURL + "/" + strings.Join(escaped, "/")
}

func (g *CardGateway) authorize(req *http.Request) {
	req.SetBasicAuth("merchant."+g.opts.MerchantID, g.opts.APIPassword)
}

func (g *CardGateway) returnURL(orderID string) string {
	sep := "?"
	if strings.Contains(g.opts.ReturnURL, "?") {
		sep = "&"
	}
	return g.opts.ReturnURL + sep + "orderId=" + url.QueryEscape(orderID)
}
