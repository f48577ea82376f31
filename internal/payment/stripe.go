// Package payment wraps the Stripe gateway: intent creation for
// checkout, signed webhook parsing for capture notifications, and
// refund issuing. The order state machine only consumes the resulting
// state effects.
package payment

import (
	"encoding/json"
	"log"
	"math"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"teestyle/internal/models"
)

type Client struct {
	api           *client.API
	webhookSecret string
	infoLog       *log.Logger
}

func New(apiKey, webhookSecret string, infoLog *log.Logger) *Client {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &Client{api: sc, webhookSecret: webhookSecret, infoLog: infoLog}
}

// CreateIntent opens a payment intent for the order total and returns
// the client secret the storefront completes the payment with.
func (c *Client) CreateIntent(o models.Order) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toCents(o.TotalPrice)),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("order_id", o.ID.Hex())

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return "", err
	}
	c.infoLog.Printf("payment intent %s opened for order %s", pi.ID, o.ID.Hex())
	return pi.ClientSecret, nil
}

// ParseWebhook verifies the Stripe signature and, for a successful
// capture, returns the order id and the payment result to record.
// Events that are not captures come back with ok=false.
func (c *Client) ParseWebhook(payload []byte, sigHeader string) (orderID string, result models.PaymentResult, ok bool, err error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, c.webhookSecret)
	if err != nil {
		return "", models.PaymentResult{}, false, err
	}
	if event.Type != "payment_intent.succeeded" {
		return "", models.PaymentResult{}, false, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return "", models.PaymentResult{}, false, err
	}
	result = models.PaymentResult{
		ID:           pi.ID,
		Status:       string(pi.Status),
		UpdateTime:   time.Unix(event.Created, 0).UTC().Format(time.RFC3339),
		EmailAddress: pi.ReceiptEmail,
	}
	return pi.Metadata["order_id"], result, true, nil
}

// Refund pushes a refund back through the gateway for an already
// captured intent.
func (c *Client) Refund(paymentIntentID string, amount float64) error {
	_, err := c.api.Refunds.New(&stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Amount:        stripe.Int64(toCents(amount)),
	})
	return err
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
