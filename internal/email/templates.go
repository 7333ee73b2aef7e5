package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

const (
	TemplateOrderPlaced      = "order_placed"
	TemplatePaymentConfirmed = "payment_confirmed"
	TemplateOrderShipped     = "order_shipped"
	TemplateOperatorNewOrder = "operator_new_order"
)

// OrderInfo is the data every order template renders. Amounts are already
// formatted with their currency.
type OrderInfo struct {
	OrderID        string
	OrderNumber    string
	OrderDate      string
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	ShopName       string
	ShopURL        string
	StatusURL      string
	PaymentMethod  string
	CashOnDelivery bool
	Items          []OrderItem
	Subtotal       string
	Shipping       string
	Total          string
	ShippingMethod string
	Destination    []string
	TrackingNumber string
	TrackingURL    string
	Carrier        string
}

type OrderItem struct {
	Name       string
	Quantity   int
	UnitPrice  string
	TotalPrice string
}

type definition struct {
	subject string
	text    string
	html    string
}

var definitions = map[string]definition{
	TemplateOrderPlaced: {
		subject: "Order {{.OrderNumber}} received - {{.ShopName}}",
		text:    orderPlacedText,
		html:    orderPlacedHTML,
	},
	TemplatePaymentConfirmed: {
		subject: "Payment received for order {{.OrderNumber}} - {{.ShopName}}",
		text:    paymentConfirmedText,
		html:    paymentConfirmedHTML,
	},
	TemplateOrderShipped: {
		subject: "Order {{.OrderNumber}} is on its way - {{.ShopName}}",
		text:    orderShippedText,
		html:    orderShippedHTML,
	},
	TemplateOperatorNewOrder: {
		subject: "New {{if .CashOnDelivery}}COD{{else}}card{{end}} order {{.OrderNumber}} ({{.Total}})",
		text:    operatorNewOrderText,
		html:    operatorNewOrderHTML,
	},
}

type compiled struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

// Renderer is safe for concurrent use once built.
type Renderer struct {
	templates map[string]compiled
}

func NewRenderer() (*Renderer, error) {
	templates := make(map[string]compiled, len(definitions))
	for name, def := range definitions {
		subject, err := texttemplate.New(name + "_subject").Parse(def.subject)
		if err != nil {
			return nil, fmt.Errorf("failed to parse subject template %s: %w", name, err)
		}
		text, err := texttemplate.New(name + "_text").Parse(def.text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse text template %s: %w", name, err)
		}
		html, err := htmltemplate.New(name + "_html").Parse(layoutHead + def.html + layoutFoot)
		if err != nil {
			return nil, fmt.Errorf("failed to parse HTML template %s: %w", name, err)
		}
		templates[name] = compiled{subject: subject, text: text, html: html}
	}
	return &Renderer{templates: templates}, nil
}

// Render builds an email addressed to the customer.
func (r *Renderer) Render(templateName string, data *OrderInfo) (*Email, error) {
	if data == nil {
		return nil, fmt.Errorf("order info is required")
	}
	return r.RenderTo(templateName, data, data.CustomerEmail)
}

func (r *Renderer) RenderTo(templateName string, data *OrderInfo, to string) (*Email, error) {
	tmpl, ok := r.templates[templateName]
	if !ok {
		return nil, fmt.Errorf("unknown email template %q", templateName)
	}
	if to == "" {
		return nil, fmt.Errorf("recipient is required")
	}

	var subject, text, html bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}
	if err := tmpl.text.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}
	if err := tmpl.html.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}

	return &Email{
		To:      to,
		Subject: subject.String(),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

const itemsText = `{{range .Items}}- {{.Name}} x{{.Quantity}} - {{.TotalPrice}}
{{end}}
Subtotal: {{.Subtotal}}
Shipping ({{.ShippingMethod}}): {{.Shipping}}
Total: {{.Total}}
`

const orderPlacedText = `Hi {{.CustomerName}},

We received order {{.OrderNumber}} on {{.OrderDate}}. You pay {{.Total}} in cash when the parcel arrives.

` + itemsText + `
Delivery to:
{{range .Destination}}{{.}}
{{end}}
{{if .StatusURL}}Follow your order: {{.StatusURL}}{{end}}

{{.ShopName}}
{{.ShopURL}}
`

const paymentConfirmedText = `Hi {{.CustomerName}},

Your card payment for order {{.OrderNumber}} went through. We are preparing the parcel.

` + itemsText + `
Delivery to:
{{range .Destination}}{{.}}
{{end}}
{{.ShopName}}
{{.ShopURL}}
`

const orderShippedText = `Hi {{.CustomerName}},

Order {{.OrderNumber}} has been handed to {{.Carrier}}.
{{if .TrackingNumber}}Tracking number: {{.TrackingNumber}}{{end}}
{{if .TrackingURL}}Track it here: {{.TrackingURL}}{{end}}
{{if .CashOnDelivery}}Please have {{.Total}} ready for the courier.{{end}}

{{.ShopName}}
{{.ShopURL}}
`

const operatorNewOrderText = `Order {{.OrderNumber}} ({{.OrderID}})
Payment: {{.PaymentMethod}}
Customer: {{.CustomerName}} <{{.CustomerEmail}}> {{.CustomerPhone}}

` + itemsText + `
Ship via {{.ShippingMethod}} to:
{{range .Destination}}{{.}}
{{end}}`

const layoutHead = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <style>
    body { font-family: Georgia, 'Times New Roman', serif; line-height: 1.6; color: #2f3a2f; max-width: 600px; margin: 0 auto; padding: 20px; }
    .band { background: #5b7f3a; color: #fff; padding: 18px; border-radius: 6px 6px 0 0; }
    .body { background: #f6f8f1; padding: 18px; border: 1px solid #dfe6d3; }
    table { width: 100%; border-collapse: collapse; }
    td { padding: 6px 0; border-bottom: 1px solid #dfe6d3; }
    .num { text-align: right; }
    .foot { color: #6b7566; font-size: 13px; padding: 16px 0; }
  </style>
</head>
<body>
`

const layoutFoot = `  <div class="foot"><a href="{{.ShopURL}}">{{.ShopName}}</a></div>
</body>
</html>
`

const itemsHTML = `
    <table>
      {{range .Items}}<tr><td>{{.Name}} &times; {{.Quantity}}</td><td class="num">{{.TotalPrice}}</td></tr>
      {{end}}<tr><td>Subtotal</td><td class="num">{{.Subtotal}}</td></tr>
      <tr><td>Shipping ({{.ShippingMethod}})</td><td class="num">{{.Shipping}}</td></tr>
      <tr><td><strong>Total</strong></td><td class="num"><strong>{{.Total}}</strong></td></tr>
    </table>
    <p>{{range .Destination}}{{.}}<br>{{end}}</p>
`

const orderPlacedHTML = `  <div class="band"><h2>Order {{.OrderNumber}} received</h2></div>
  <div class="body">
    <p>Hi {{.CustomerName}}, you pay <strong>{{.Total}}</strong> in cash when the parcel arrives.</p>
` + itemsHTML + `
    {{if .StatusURL}}<p><a href="{{.StatusURL}}">Follow your order</a></p>{{end}}
  </div>
`

const paymentConfirmedHTML = `  <div class="band"><h2>Payment received</h2></div>
  <div class="body">
    <p>Hi {{.CustomerName}}, your card payment for order {{.OrderNumber}} went through.</p>
` + itemsHTML + `
  </div>
`

const orderShippedHTML = `  <div class="band"><h2>Order {{.OrderNumber}} is on its way</h2></div>
  <div class="body">
    <p>Hi {{.CustomerName}}, your parcel is with {{.Carrier}}.</p>
    {{if .TrackingNumber}}<p>Tracking number: <strong>{{.TrackingNumber}}</strong></p>{{end}}
    {{if .TrackingURL}}<p><a href="{{.TrackingURL}}">Track your parcel</a></p>{{end}}
    {{if .CashOnDelivery}}<p>Please have {{.Total}} ready for the courier.</p>{{end}}
  </div>
`

const operatorNewOrderHTML = `  <div class="band"><h2>New order {{.OrderNumber}}</h2></div>
  <div class="body">
    <p>{{.PaymentMethod}} &middot; {{.CustomerName}} &lt;{{.CustomerEmail}}&gt; {{.CustomerPhone}}</p>
` + itemsHTML + `
  </div>
`
