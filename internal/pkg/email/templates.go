package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

const layout = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="margin:0;padding:0;background:#0f0c29;font-family:Georgia,'Times New Roman',serif;color:#e8e6f0;">
  <div style="max-width:600px;margin:0 auto;padding:40px 24px;">
    <h1 style="font-weight:300;letter-spacing:2px;color:#c4b5fd;text-align:center;">Mirror of Truth</h1>
    {{template "content" .}}
    <hr style="border:none;border-top:1px solid rgba(255,255,255,0.1);margin:32px 0;">
    <p style="color:#8b87a3;font-size:12px;text-align:center;">This message was sent automatically. Please do not reply.</p>
  </div>
</body>
</html>`

var contents = map[string]string{
	"welcome": `{{define "content"}}
    <p>Hello {{.Name}},</p>
    <p>Welcome. Your mirror is ready whenever you are.</p>
    {{if .VerifyURL}}<p style="text-align:center;margin:32px 0;"><a href="{{.VerifyURL}}" style="background:#7c3aed;color:#fff;padding:12px 28px;border-radius:24px;text-decoration:none;">Verify your email</a></p>
    <p style="font-size:13px;color:#8b87a3;">The link is valid for 24 hours.</p>{{end}}
{{end}}`,
	"password_reset": `{{define "content"}}
    <p>Hello {{.Name}},</p>
    <p>We received a request to reset your password.</p>
    <p style="text-align:center;margin:32px 0;"><a href="{{.ResetURL}}" style="background:#7c3aed;color:#fff;padding:12px 28px;border-radius:24px;text-decoration:none;">Reset password</a></p>
    <p style="font-size:13px;color:#8b87a3;">The link is valid for 30 minutes. If you did not ask for this, ignore this email.</p>
{{end}}`,
	"gift": `{{define "content"}}
    <p>Dear {{.RecipientName}},</p>
    <p>{{.GiverName}} has gifted you {{.DurationMonths}} month{{if gt .DurationMonths 1}}s{{end}} of Mirror of Truth <strong>{{.Tier}}</strong>.</p>
    {{if .PersonalMessage}}<blockquote style="border-left:3px solid #7c3aed;margin:24px 0;padding:8px 16px;font-style:italic;">{{.PersonalMessage}}</blockquote>{{end}}
    <p style="text-align:center;font-size:22px;letter-spacing:3px;background:rgba(255,255,255,0.06);padding:16px;border-radius:8px;">{{.Code}}</p>
    <p style="text-align:center;margin:32px 0;"><a href="{{.RedeemURL}}" style="background:#7c3aed;color:#fff;padding:12px 28px;border-radius:24px;text-decoration:none;">Redeem your gift</a></p>
    <p style="font-size:13px;color:#8b87a3;">Redeem before {{.ExpiresAt}}.</p>
{{end}}`,
	"gift_purchased": `{{define "content"}}
    <p>Hello {{.GiverName}},</p>
    <p>Thank you. Your gift of {{.DurationMonths}} month{{if gt .DurationMonths 1}}s{{end}} of <strong>{{.Tier}}</strong> for {{.RecipientName}} is on its way to {{.RecipientEmail}}.</p>
    <p>Gift code: <strong>{{.Code}}</strong></p>
{{end}}`,
	"subscription": `{{define "content"}}
    <p>Hello {{.Name}},</p>
    <p>Your <strong>{{.Tier}}</strong> subscription is active{{if .Period}} ({{.Period}}){{end}}.</p>
    {{if .ExpiresAt}}<p>It runs until {{.ExpiresAt}}.</p>{{end}}
{{end}}`,
	"payment_failed": `{{define "content"}}
    <p>Hello {{.Name}},</p>
    <p>We could not process your latest payment for <strong>{{.Tier}}</strong>. Please update your billing details to keep your subscription.</p>
    {{if .PortalURL}}<p style="text-align:center;margin:32px 0;"><a href="{{.PortalURL}}" style="background:#7c3aed;color:#fff;padding:12px 28px;border-radius:24px;text-decoration:none;">Update billing</a></p>{{end}}
{{end}}`,
	"receipt": `{{define "content"}}
    <p>Hello {{.CustomerName}},</p>
    <p>Thank you for your payment. Here is your receipt.</p>
    <table style="width:100%;border-collapse:collapse;margin:24px 0;font-size:14px;">
      <tr><td style="padding:8px 0;color:#8b87a3;">Receipt</td><td style="text-align:right;">{{.ReceiptNumber}}</td></tr>
      <tr><td style="padding:8px 0;color:#8b87a3;">Date</td><td style="text-align:right;">{{.IssuedAt}}</td></tr>
      <tr><td style="padding:8px 0;color:#8b87a3;">Description</td><td style="text-align:right;">{{.Description}}</td></tr>
      <tr><td style="padding:8px 0;color:#8b87a3;">Payment method</td><td style="text-align:right;">{{.PaymentMethod}}</td></tr>
      <tr><td style="padding:12px 0;border-top:1px solid rgba(255,255,255,0.1);"><strong>Total</strong></td><td style="text-align:right;border-top:1px solid rgba(255,255,255,0.1);"><strong>{{.Amount}}</strong></td></tr>
    </table>
{{end}}`,
}

var templates = func() map[string]*template.Template {
	m := make(map[string]*template.Template, len(contents))
	for name, body := range contents {
		m[name] = template.Must(template.Must(template.New(name).Parse(layout)).Parse(body))
	}
	return m
}()

func render(name string, data interface{}) (string, error) {
	tpl, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("unknown email template %q", name)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func build(to, subject, name string, data interface{}) (*Message, error) {
	html, err := render(name, data)
	if err != nil {
		return nil, err
	}
	return &Message{To: to, Subject: subject, HTML: html, Template: name}, nil
}

// WelcomeMessage 注册欢迎及邮箱验证
func WelcomeMessage(to, name, verifyURL string) (*Message, error) {
	return build(to, "Welcome to Mirror of Truth", "welcome", map[string]string{
		"Name":      name,
		"VerifyURL": verifyURL,
	})
}

// PasswordResetMessage 密码重置
func PasswordResetMessage(to, name, resetURL string) (*Message, error) {
	return build(to, "Reset your Mirror of Truth password", "password_reset", map[string]string{
		"Name":     name,
		"ResetURL": resetURL,
	})
}

// GiftData 礼物邮件数据
type GiftData struct {
	Code            string
	GiverName       string
	RecipientName   string
	RecipientEmail  string
	Tier            string
	DurationMonths  int
	PersonalMessage string
	RedeemURL       string
	ExpiresAt       string
}

// GiftMessage 通知受赠人
func GiftMessage(to string, data GiftData) (*Message, error) {
	return build(to, fmt.Sprintf("%s sent you a gift", data.GiverName), "gift", data)
}

// GiftPurchasedMessage 通知赠送人
func GiftPurchasedMessage(to string, data GiftData) (*Message, error) {
	return build(to, "Your gift is on its way", "gift_purchased", data)
}

// SubscriptionMessage 订阅生效
func SubscriptionMessage(to, name, tier, period string, expiresAt *time.Time) (*Message, error) {
	data := map[string]string{"Name": name, "Tier": tier, "Period": period}
	if expiresAt != nil {
		data["ExpiresAt"] = expiresAt.Format("January 2, 2006")
	}
	return build(to, "Your subscription is active", "subscription", data)
}

// PaymentFailedMessage 扣款失败
func PaymentFailedMessage(to, name, tier, portalURL string) (*Message, error) {
	return build(to, "We could not process your payment", "payment_failed", map[string]string{
		"Name":      name,
		"Tier":      tier,
		"PortalURL": portalURL,
	})
}

// ReceiptData 收据数据
type ReceiptData struct {
	ReceiptNumber string
	CustomerName  string
	IssuedAt      string
	Description   string
	PaymentMethod string
	Amount        string
}

// ReceiptHTML 渲染收据正文，也用于归档
func ReceiptHTML(data ReceiptData) (string, error) {
	return render("receipt", data)
}

// ReceiptMessage 收据邮件
func ReceiptMessage(to string, data ReceiptData) (*Message, error) {
	return build(to, "Your receipt "+data.ReceiptNumber, "receipt", data)
}
