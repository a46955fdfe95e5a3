// Package mailer renders and delivers transactional email.
package mailer

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/xenking/fruitsmith-checkout/internal/domain/notify"
	"github.com/xenking/fruitsmith-checkout/internal/domain/order"
	"github.com/xenking/fruitsmith-checkout/internal/domain/user"
)

//go:embed templates/*.html
var templatesFS embed.FS

// RendererConfig configures the Renderer.
type RendererConfig struct {
	Brand string
	// Locale is a BCP 47 tag used for amount formatting, e.g. "en-IN".
	Locale string
}

var _ notify.Renderer = (*Renderer)(nil)

// Renderer builds order emails from embedded HTML templates.
type Renderer struct {
	brand   string
	tmpl    *template.Template
	printer *message.Printer
	now     func() time.Time
}

// NewRenderer parses the templates.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	tag := language.English
	if cfg.Locale != "" {
		parsed, err := language.Parse(cfg.Locale)
		if err != nil {
			return nil, errors.Wrapf(err, "parse locale %q", cfg.Locale)
		}
		tag = parsed
	}

	tmpl, err := template.ParseFS(templatesFS, "templates/order_confirmation.html")
	if err != nil {
		return nil, errors.Wrap(err, "parse templates")
	}

	brand := cfg.Brand
	if brand == "" {
		brand = "Fruit Elegance"
	}
	return &Renderer{
		brand:   brand,
		tmpl:    tmpl,
		printer: message.NewPrinter(tag),
		now:     time.Now,
	}, nil
}

type confirmationItem struct {
	Name      string
	Quantity  int
	Image     string
	LineTotal string
}

type confirmationData struct {
	Brand        string
	Recipient    string
	OrderID      string
	Status       string
	Subtotal     string
	DeliveryFee  string
	FreeDelivery bool
	Total        string
	Items        []confirmationItem
	Address      order.Address
	Year         int
}

// OrderConfirmation renders the confirmation email for o.
func (r *Renderer) OrderConfirmation(recipient *user.User, o *order.Order) (notify.Message, error) {
	items := make([]confirmationItem, 0, len(o.Items))
	for _, item := range o.Items {
		ci := confirmationItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			LineTotal: r.money(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))), o.Currency),
		}
		if len(item.Image) > 0 {
			ci.Image = item.Image[0]
		}
		items = append(items, ci)
	}

	name := recipient.Name
	if name == "" {
		name = "there"
	}
	data := confirmationData{
		Brand:        r.brand,
		Recipient:    name,
		OrderID:      o.ID,
		Status:       string(o.Status),
		Subtotal:     r.money(o.Subtotal, o.Currency),
		DeliveryFee:  r.money(o.DeliveryFee, o.Currency),
		FreeDelivery: o.DeliveryFee.IsZero(),
		Total:        r.money(o.TotalAmount, o.Currency),
		Items:        items,
		Address:      o.ShippingAddress,
		Year:         r.now().Year(),
	}

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "order_confirmation.html", data); err != nil {
		return notify.Message{}, errors.Wrap(err, "execute template")
	}

	return notify.Message{
		To:      recipient.Email,
		ToName:  recipient.Name,
		Subject: "Order Confirmation - #" + o.ID,
		HTML:    buf.String(),
	}, nil
}

// money formats amount with the currency symbol for the configured locale.
func (r *Renderer) money(amount decimal.Decimal, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return code + " " + amount.StringFixed(2)
	}
	return r.printer.Sprint(currency.Symbol(unit.Amount(amount.InexactFloat64())))
}
