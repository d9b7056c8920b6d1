package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v79"
	portal "github.com/stripe/stripe-go/v79/billingportal/session"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/qs3c/mirror_server/config"
)

// StripeProvider Stripe 实现
type StripeProvider struct {
	webhookSecret string
}

func NewStripeProvider(cfg config.StripeConfig) *StripeProvider {
	stripe.Key = cfg.SecretKey
	return &StripeProvider{webhookSecret: cfg.WebhookSecret}
}

// EnsureCustomer 创建 Stripe customer，metadata 记录 user_id
func (p *StripeProvider) EnsureCustomer(ctx context.Context, email, name string, userID int64) (string, error) {
	if stripe.Key == "" {
		return "", ErrNotConfigured
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
		Metadata: map[string]string{
			"user_id": strconv.FormatInt(userID, 10),
		},
	}
	params.Context = ctx

	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return cust.ID, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, in *CheckoutParams) (*CheckoutSession, error) {
	if stripe.Key == "" {
		return nil, ErrNotConfigured
	}

	quantity := in.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(in.Mode),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(quantity),
			},
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		Metadata:   in.Metadata,
	}
	params.Context = ctx

	if in.CustomerID != "" {
		params.Customer = stripe.String(in.CustomerID)
	} else if in.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}
	if in.ReferenceID != "" {
		params.ClientReferenceID = stripe.String(in.ReferenceID)
	}
	if in.Mode == ModeSubscription {
		// 订阅事件里也能拿到同样的 metadata
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: in.Metadata,
		}
	}

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if stripe.Key == "" {
		return "", ErrNotConfigured
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := portal.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe portal session: %w", err)
	}
	return sess.URL, nil
}

// ParseWebhook 校验签名并把关心的事件展开成 Event，其他类型只填 ID/Type
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if p.webhookSecret == "" {
		return nil, ErrNotConfigured
	}

	raw, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	event := &Event{ID: raw.ID, Type: string(raw.Type)}
	if raw.Data == nil {
		return event, nil
	}

	switch event.Type {
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(raw.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		fillFromSession(event, &sess)

	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		fillFromSubscription(event, &sub)

	case EventInvoicePaid, EventInvoiceFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		fillFromInvoice(event, &inv)
	}

	return event, nil
}

func fillFromSession(e *Event, sess *stripe.CheckoutSession) {
	e.SessionID = sess.ID
	e.Mode = string(sess.Mode)
	e.Metadata = sess.Metadata
	e.AmountCents = sess.AmountTotal
	e.Currency = string(sess.Currency)
	e.CustomerEmail = sess.CustomerEmail
	if sess.Customer != nil {
		e.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		e.SubscriptionID = sess.Subscription.ID
	}
	if sess.CustomerDetails != nil {
		if sess.CustomerDetails.Email != "" {
			e.CustomerEmail = sess.CustomerDetails.Email
		}
		e.CustomerName = sess.CustomerDetails.Name
	}
}

func fillFromSubscription(e *Event, sub *stripe.Subscription) {
	e.SubscriptionID = sub.ID
	e.Status = string(sub.Status)
	e.Metadata = sub.Metadata
	e.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	if sub.Customer != nil {
		e.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		e.CurrentPeriodEnd = &end
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		fillFromPrice(e, sub.Items.Data[0].Price)
	}
}

func fillFromInvoice(e *Event, inv *stripe.Invoice) {
	e.InvoiceID = inv.ID
	e.AmountCents = inv.AmountPaid
	if e.Type == EventInvoiceFailed {
		e.AmountCents = inv.AmountDue
	}
	e.Currency = string(inv.Currency)
	e.CustomerEmail = inv.CustomerEmail
	e.CustomerName = inv.CustomerName
	e.Description = inv.Description
	e.BillingReason = string(inv.BillingReason)
	e.Metadata = inv.Metadata
	e.PaymentMethod = "card"
	if inv.Customer != nil {
		e.CustomerID = inv.Customer.ID
	}
	if inv.Subscription != nil {
		e.SubscriptionID = inv.Subscription.ID
	}
	if inv.Lines != nil && len(inv.Lines.Data) > 0 {
		line := inv.Lines.Data[0]
		if e.Description == "" {
			e.Description = line.Description
		}
		if line.Price != nil {
			fillFromPrice(e, line.Price)
		}
		if line.Period != nil && line.Period.End > 0 {
			end := time.Unix(line.Period.End, 0).UTC()
			e.CurrentPeriodEnd = &end
		}
	}
}

func fillFromPrice(e *Event, price *stripe.Price) {
	e.PriceID = price.ID
	if price.Recurring != nil {
		e.Interval = string(price.Recurring.Interval)
	}
}
