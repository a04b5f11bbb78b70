// Package email provides email templates.
package email

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"text/template"
)

// OrderInfo contains the information needed for order email templates.
type OrderInfo struct {
	OrderID       string
	CustomerEmail string
	Total         string
	Reason        string
	OrderURL      string
}

// Renderer provides methods to render email templates.
type Renderer struct {
	templates *template.Template
}

// NewRenderer creates a new email template renderer with built-in templates.
func NewRenderer() (*Renderer, error) {
	templates := map[string]struct {
		HTML string
		Text string
	}{
		"order_paid":    {HTML: orderPaidHTML, Text: orderPaidText},
		"order_failed":  {HTML: orderFailedHTML, Text: orderFailedText},
		"order_shipped": {HTML: orderShippedHTML, Text: orderShippedText},
	}

	tmpl := template.New("email")
	for key, t := range templates {
		if _, err := tmpl.New(key + "_html").Parse(t.HTML); err != nil {
			return nil, fmt.Errorf("failed to parse HTML template %s: %w", key, err)
		}
		if _, err := tmpl.New(key + "_text").Parse(t.Text); err != nil {
			return nil, fmt.Errorf("failed to parse text template %s: %w", key, err)
		}
	}

	return &Renderer{templates: tmpl}, nil
}

// Render renders an email template with the given data.
func (r *Renderer) Render(templateName string, data *OrderInfo) (*Email, error) {
	var htmlBuf, textBuf bytes.Buffer

	if err := r.templates.ExecuteTemplate(&htmlBuf, templateName+"_html", data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}
	if err := r.templates.ExecuteTemplate(&textBuf, templateName+"_text", data); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}

	subject := ""
	switch templateName {
	case "order_paid":
		subject = fmt.Sprintf("Payment received - order %s", data.OrderID)
	case "order_failed":
		subject = fmt.Sprintf("Payment failed - order %s", data.OrderID)
	case "order_shipped":
		subject = fmt.Sprintf("Your order has shipped - order %s", data.OrderID)
	}

	return &Email{
		To:      data.CustomerEmail,
		Subject: subject,
		Text:    textBuf.String(),
		HTML:    htmlBuf.String(),
	}, nil
}

// SendOrderPaid sends the payment-received email.
func SendOrderPaid(ctx context.Context, p Provider, orderInfo *OrderInfo) error {
	return renderAndSend(ctx, p, "order_paid", orderInfo)
}

// SendOrderFailed sends the payment-failed or expired email.
func SendOrderFailed(ctx context.Context, p Provider, orderInfo *OrderInfo) error {
	return renderAndSend(ctx, p, "order_failed", orderInfo)
}

// SendOrderShipped sends the shipment notification email.
func SendOrderShipped(ctx context.Context, p Provider, orderInfo *OrderInfo) error {
	return renderAndSend(ctx, p, "order_shipped", orderInfo)
}

func renderAndSend(ctx context.Context, p Provider, templateName string, orderInfo *OrderInfo) error {
	if p == nil {
		return nil
	}

	renderer, err := NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}

	email, err := renderer.Render(templateName, orderInfo)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}

	return p.SendEmail(ctx, email)
}

// FormatRupiah renders an amount in whole rupiah with Indonesian thousand
// separators, e.g. 150000 -> "Rp 150.000".
func FormatRupiah(amount int64) string {
	digits := strconv.FormatInt(amount, 10)
	negative := false
	if digits[0] == '-' {
		negative = true
		digits = digits[1:]
	}

	var buf bytes.Buffer
	lead := len(digits) % 3
	if lead > 0 {
		buf.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if buf.Len() > 0 {
			buf.WriteByte('.')
		}
		buf.WriteString(digits[i : i+3])
	}

	if negative {
		return "-Rp " + buf.String()
	}
	return "Rp " + buf.String()
}

const orderPaidHTML = `<div style="font-family:Arial,sans-serif;line-height:1.6">
  <h2>Payment Success ✅</h2>
  <p>Order kamu sudah dibayar.</p>
  <p><b>Order ID:</b> {{.OrderID}}</p>
  <p><b>Total:</b> {{.Total}}</p>
  <p><a href="{{.OrderURL}}">Lihat status order</a></p>
</div>`

const orderPaidText = `Payment received.

Order ID: {{.OrderID}}
Total: {{.Total}}

View your order: {{.OrderURL}}`

const orderFailedHTML = `<div style="font-family:Arial,sans-serif;line-height:1.6">
  <h2>Pembayaran gagal / expired</h2>
  <p><b>Order ID:</b> {{.OrderID}}</p>
  <p><b>Reason:</b> {{.Reason}}</p>
  <p><a href="{{.OrderURL}}">Buka order</a></p>
</div>`

const orderFailedText = `Payment failed or expired.

Order ID: {{.OrderID}}
Reason: {{.Reason}}

View your order: {{.OrderURL}}`

const orderShippedHTML = `<div style="font-family:Arial,sans-serif;line-height:1.6">
  <h2>Order dikirim 🚚</h2>
  <p>Order <b>{{.OrderID}}</b> sudah dikirim.</p>
  <p><a href="{{.OrderURL}}">Lihat status</a></p>
</div>`

const orderShippedText = `Your order has shipped.

Order ID: {{.OrderID}}

View your order: {{.OrderURL}}`
