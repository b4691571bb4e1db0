package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

func TestUnitAmount(t *testing.T) {
	cases := map[string]int64{
		"10":     1000,
		"10.5":   1050,
		"19.99":  1999,
		"0.01":   1,
		"2.005":  201,
		"2.0049": 200,
	}
	for in, want := range cases {
		assert.Equal(t, want, UnitAmount(decimal.RequireFromString(in)), in)
	}
}

func TestSessionParams(t *testing.T) {
	s := NewStripe(StripeConfig{SecretKey: "sk_test", ClientURL: "https://shop.example/", Currency: "eur"}, nil, zerolog.Nop())
	p := s.sessionParams(SessionRequest{
		CustomerEmail: "a@b.c",
		Items: []LineItem{
			{Name: "Mug", UnitPrice: decimal.RequireFromString("10.50"), Quantity: 2},
			{Name: "Tea", UnitPrice: decimal.RequireFromString("4"), Quantity: 1},
		},
	})

	assert.Equal(t, "payment", *p.Mode)
	assert.Equal(t, "https://shop.example/checkout/success?session_id={CHECKOUT_SESSION_ID}", *p.SuccessURL)
	assert.Equal(t, "https://shop.example/cart", *p.CancelURL)
	assert.Equal(t, "a@b.c", *p.CustomerEmail)
	require.Len(t, p.LineItems, 2)
	assert.Equal(t, int64(1050), *p.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "eur", *p.LineItems[0].PriceData.Currency)
	assert.Equal(t, "Mug", *p.LineItems[0].PriceData.ProductData.Name)
	assert.Equal(t, int64(2), *p.LineItems[0].Quantity)
}

func testBackends(url string) *stripe.Backends {
	b := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(url),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return &stripe.Backends{API: b, Connect: b, Uploads: b}
}

func TestCreateAndGetSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/checkout/sessions":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "1999", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
			assert.Equal(t, "usd", r.PostForm.Get("line_items[0][price_data][currency]"))
			assert.Equal(t, "3", r.PostForm.Get("line_items[0][quantity]"))
			fmt.Fprint(w, `{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.example/cs_test_1","payment_status":"unpaid"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/checkout/sessions/cs_test_1":
			fmt.Fprint(w, `{"id":"cs_test_1","object":"checkout.session","payment_status":"paid","customer_details":{"email":"buyer@example.com"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewStripe(StripeConfig{SecretKey: "sk_test_123", ClientURL: "http://localhost:3000"}, testBackends(srv.URL), zerolog.Nop())
	ctx := context.Background()

	created, err := s.CreateSession(ctx, SessionRequest{
		CustomerEmail: "buyer@example.com",
		Items:         []LineItem{{Name: "Lamp", UnitPrice: decimal.RequireFromString("19.99"), Quantity: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", created.ID)
	assert.Equal(t, "https://checkout.example/cs_test_1", created.URL)

	got, err := s.GetSession(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.PaymentStatus)
	assert.Equal(t, "buyer@example.com", got.CustomerEmail, "falls back to customer details")
}

func TestNotConfigured(t *testing.T) {
	s := NewStripe(StripeConfig{}, nil, zerolog.Nop())
	_, err := s.CreateSession(context.Background(), SessionRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = s.GetSession(context.Background(), "cs")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = s.VerifyWebhook([]byte("{}"), "sig")
	assert.ErrorIs(t, err, ErrNotConfigured)

	noClient := NewStripe(StripeConfig{SecretKey: "sk_test"}, nil, zerolog.Nop())
	_, err = noClient.CreateSession(context.Background(), SessionRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured, "client url is required")
}

func TestVerifyWebhook(t *testing.T) {
	const secret = "whsec_test"
	s := NewStripe(StripeConfig{WebhookSecret: secret}, nil, zerolog.Nop())
	payload := []byte(`{"id":"evt_1","object":"event","api_version":"2020-08-27","type":"checkout.session.completed","data":{"object":{"id":"cs_test_9","object":"checkout.session"}}}`)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	ev, err := s.VerifyWebhook(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, EventCheckoutCompleted, ev.Type)
	assert.Equal(t, "cs_test_9", ev.SessionID)

	_, err = s.VerifyWebhook(payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
