package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
)

const walletSecret = "wallet-secret"

func hmacHex(secret string, msg []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

func newWalletServer(t *testing.T, lenient bool, handler http.HandlerFunc) *WalletGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewWalletGateway(WalletOptions{
		BaseURL:          srv.URL,
		MerchantID:       "WALLET1",
		Secret:           walletSecret,
		CallbackURL:      "https://api.example/api/payment/benefit-callback",
		LenientSignature: lenient,
		Timeout:          2 * time.Second,
	}, discardLogger())
}

func TestWalletCreateSession_SignsRequest(t *testing.T) {
	gw := newWalletServer(t, false, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payment/init", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, hmacHex(walletSecret, body), r.Header.Get("X-Signature"))

		var req walletInitRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "SE1", req.TrackID)
		assert.Equal(t, "22.200", req.Amount)
		assert.Equal(t, "https://api.example/api/payment/benefit-callback", req.ResponseURL)

		w.Write([]byte(`{"result":"SUCCESS","paymentId":"PAY-1","paymentUrl":"https://wallet.example/pay/PAY-1"}`))
	})

	session, err := gw.CreateSession(context.Background(), testOrder("SE1", domain.PaymentMethodWallet, "22.200"),
		domain.CustomerDetails{Name: "Ali", Email: "ali@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "wallet", session.Gateway)
	assert.Equal(t, "PAY-1", session.SessionID)
	assert.Equal(t, "https://wallet.example/pay/PAY-1", session.PaymentURL)
}

func TestWalletCreateSession_Rejected(t *testing.T) {
	gw := newWalletServer(t, false, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"ERROR","errorText":"merchant disabled"}`))
	})

	_, err := gw.CreateSession(context.Background(), testOrder("SE1", domain.PaymentMethodWallet, "22.200"), domain.CustomerDetails{})
	assert.ErrorIs(t, err, domain.ErrGatewayRejected)
}

func TestWalletVerify_SignedCallback(t *testing.T) {
	gw := newWalletServer(t, false, func(w http.ResponseWriter, r *http.Request) {
		t.Error("signed callbacks must not trigger an inquiry")
	})
	order := testOrder("SE1", domain.PaymentMethodWallet, "22.200")

	cb := domain.CallbackPayload{TransactionID: "TX-1", Status: "CAPTURED", Amount: "22.200"}
	cb.Signature = gw.SignCallback(order.ID, cb)

	v, err := gw.Verify(context.Background(), order, cb)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApproved, v.Outcome)
	assert.Equal(t, "TX-1", v.Reference)
}

func TestWalletVerify_CallbackStatuses(t *testing.T) {
	tests := []struct {
		status string
		want   domain.Outcome
	}{
		{"CAPTURED", domain.OutcomeApproved},
		{"approved", domain.OutcomeApproved},
		{"NOT CAPTURED", domain.OutcomeDeclined},
		{"CANCELED", domain.OutcomeDeclined},
		{"INITIATED", domain.OutcomePending},
	}

	gw := newWalletServer(t, false, func(w http.ResponseWriter, r *http.Request) {})
	order := testOrder("SE1", domain.PaymentMethodWallet, "22.200")

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			cb := domain.CallbackPayload{TransactionID: "TX-1", Status: tt.status, Amount: "22.200"}
			cb.Signature = gw.SignCallback(order.ID, cb)

			v, err := gw.Verify(context.Background(), order, cb)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Outcome)
		})
	}
}

func TestWalletVerify_BadSignature(t *testing.T) {
	gw := newWalletServer(t, false, func(w http.ResponseWriter, r *http.Request) {})
	order := testOrder("SE1", domain.PaymentMethodWallet, "22.200")

	cb := domain.CallbackPayload{TransactionID: "TX-1", Status: "CAPTURED", Amount: "22.200", Signature: "deadbeef"}
	_, err := gw.Verify(context.Background(), order, cb)
	assert.ErrorIs(t, err, domain.ErrSignatureMismatch)
}

func TestWalletVerify_LenientSignatureConfirmsApprovalByInquiry(t *testing.T) {
	tests := []struct {
		name string
		body string
		want domain.Outcome
	}{
		{"gateway captured", `{"result":"SUCCESS","status":"CAPTURED","transactionId":"TX-1","amount":22.2}`, domain.OutcomeApproved},
		{"gateway still waiting", `{"result":"SUCCESS","status":"INITIATED"}`, domain.OutcomePending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inquiries atomic.Int32
			gw := newWalletServer(t, true, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/payment/inquiry", r.URL.Path)
				inquiries.Add(1)
				w.Write([]byte(tt.body))
			})
			order := testOrder("SE1", domain.PaymentMethodWallet, "22.200")

			cb := domain.CallbackPayload{TransactionID: "TX-1", Status: "CAPTURED", Amount: "22.200", Signature: "deadbeef"}
			v, err := gw.Verify(context.Background(), order, cb)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Outcome)
			assert.Equal(t, int32(1), inquiries.Load())
		})
	}
}

func TestWalletVerify_LenientDeclineNeedsNoInquiry(t *testing.T) {
	gw := newWalletServer(t, true, func(w http.ResponseWriter, r *http.Request) {
		t.Error("declines must not trigger an inquiry")
	})
	order := testOrder("SE1", domain.PaymentMethodWallet, "22.200")

	cb := domain.CallbackPayload{TransactionID: "TX-1", Status: "NOT CAPTURED", Amount: "22.200", Signature: "deadbeef"}
	v, err := gw.Verify(context.Background(), order, cb)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDeclined, v.Outcome)
}

func TestWalletVerify_ApprovalWithoutAmount(t *testing.T) {
	tests := []struct {
		name    string
		lenient bool
		sign    bool
	}{
		{"signed", false, true},
		{"lenient forged", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newWalletServer(t, tt.lenient, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/payment/inquiry", r.URL.Path)
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"result":"ERROR","errorText":"unknown track id"}`))
			})
			order := testOrder("SE1", domain.PaymentMethodWallet, "22.200")

			cb := domain.CallbackPayload{TransactionID: "TX-1", Status: "CAPTURED"}
			if tt.sign {
				cb.Signature = gw.SignCallback(order.ID, cb)
			} else {
				cb.Signature = "deadbeef"
			}

			v, err := gw.Verify(context.Background(), order, cb)
			require.NoError(t, err)
			assert.Equal(t, domain.OutcomePending, v.Outcome)
		})
	}
}

func TestWalletVerify_CallbackAmountMismatch(t *testing.T) {
	gw := newWalletServer(t, false, func(w http.ResponseWriter, r *http.Request) {})
	order := testOrder("SE1", domain.PaymentMethodWallet, "22.200")

	cb := domain.CallbackPayload{TransactionID: "TX-1", Status: "CAPTURED", Amount: "2.220"}
	cb.Signature = gw.SignCallback(order.ID, cb)

	v, err := gw.Verify(context.Background(), order, cb)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDeclined, v.Outcome)
	assert.Contains(t, v.Reason, "amount mismatch")
}

func TestWalletVerify_Inquiry(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   domain.Outcome
	}{
		{"captured", http.StatusOK, `{"result":"SUCCESS","status":"CAPTURED","transactionId":"TX-1","amount":22.2}`, domain.OutcomeApproved},
		{"captured wrong amount", http.StatusOK, `{"result":"SUCCESS","status":"CAPTURED","transactionId":"TX-1","amount":1}`, domain.OutcomeDeclined},
		{"in progress", http.StatusOK, `{"result":"SUCCESS","status":"INITIATED"}`, domain.OutcomePending},
		{"not found", http.StatusNotFound, `{"result":"ERROR","errorText":"unknown track id"}`, domain.OutcomePending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newWalletServer(t, false, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/payment/inquiry", r.URL.Path)
				body, _ := io.ReadAll(r.Body)
				assert.Equal(t, hmacHex(walletSecret, body), r.Header.Get("X-Signature"))

				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			v, err := gw.Verify(context.Background(), testOrder("SE1", domain.PaymentMethodWallet, "22.200"), domain.CallbackPayload{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Outcome)
		})
	}
}

func TestWalletVerify_InquiryUnavailable(t *testing.T) {
	gw := newWalletServer(t, false, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := gw.Verify(context.Background(), testOrder("SE1", domain.PaymentMethodWallet, "22.200"), domain.CallbackPayload{})
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}
