package handler

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/ogen-go/ogen/json"
	"github.com/shopspring/decimal"

	"github.com/xenking/fruitsmith-checkout/internal/domain/order"
)

// Request bodies.

func decodePlaceOrder(data []byte) (order.PlaceOrderRequest, error) {
	var req order.PlaceOrderRequest
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		switch key {
		case "cart":
			return d.Arr(func(d *jx.Decoder) error {
				line, err := decodeCartLine(d)
				if err != nil {
					return err
				}
				req.Cart = append(req.Cart, line)
				return nil
			})
		case "shippingAddress":
			a, err := decodeAddress(d)
			req.ShippingAddress = a
			return err
		default:
			return d.Skip()
		}
	})
	return req, err
}

func decodeCartLine(d *jx.Decoder) (order.CartLine, error) {
	var line order.CartLine
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "productId", "_id":
			line.ProductID, err = d.Str()
		case "qty", "quantity":
			line.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "cart.%s", key)
	})
	return line, err
}

func decodeAddress(d *jx.Decoder) (order.Address, error) {
	var a order.Address
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var (
			dst *string
			err error
		)
		switch string(key) {
		case "name":
			dst = &a.Name
		case "mobile":
			dst = &a.Mobile
		case "street":
			dst = &a.Street
		case "city":
			dst = &a.City
		case "state":
			dst = &a.State
		case "zip":
			dst = &a.Zip
		case "country":
			dst = &a.Country
		default:
			return d.Skip()
		}
		// Numeric zip codes and phone numbers are common in client payloads.
		switch d.Next() {
		case jx.Number:
			var n jx.Num
			n, err = d.Num()
			*dst = n.String()
		default:
			*dst, err = d.Str()
		}
		return errors.Wrapf(err, "shippingAddress.%s", key)
	})
	return a, err
}

type verifyBody struct {
	PaymentID string
	Signature string
}

func decodeVerify(data []byte) (verifyBody, error) {
	var b verifyBody
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "gatewayPaymentId", "paymentId":
			b.PaymentID, err = d.Str()
		case "gatewaySignature", "signature":
			b.Signature, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return b, err
}

type statusBody struct {
	Status   string
	Override bool
}

func decodeStatus(data []byte) (statusBody, error) {
	var b statusBody
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			b.Status, err = d.Str()
		case "override":
			b.Override, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	return b, err
}

// decodeObject decodes a single top-level JSON object.
func decodeObject(data []byte, field func(d *jx.Decoder, key string) error) error {
	if len(data) == 0 {
		return errors.New("empty body")
	}
	d := jx.DecodeBytes(data)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return field(d, string(key))
	}); err != nil {
		return err
	}
	if d.Next() != jx.Invalid {
		return errors.New("unexpected data after object")
	}
	return nil
}

// Responses.

func encodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.StringFixed(2)))
}

func encodeOrderFields(e *jx.Encoder, o *order.Order) {
	e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
	e.Field("userId", func(e *jx.Encoder) { e.Str(o.OwnerID) })
	e.Field("items", func(e *jx.Encoder) {
		e.ArrStart()
		for _, item := range o.Items {
			e.ObjStart()
			e.Field("productId", func(e *jx.Encoder) { e.Str(item.ProductID) })
			e.Field("name", func(e *jx.Encoder) { e.Str(item.Name) })
			e.Field("price", func(e *jx.Encoder) { encodeMoney(e, item.UnitPrice) })
			e.Field("qty", func(e *jx.Encoder) { e.Int(item.Quantity) })
			e.Field("image", func(e *jx.Encoder) {
				e.ArrStart()
				for _, img := range item.Image {
					e.Str(img)
				}
				e.ArrEnd()
			})
			e.ObjEnd()
		}
		e.ArrEnd()
	})
	e.Field("shippingAddress", func(e *jx.Encoder) {
		a := o.ShippingAddress
		e.ObjStart()
		e.Field("name", func(e *jx.Encoder) { e.Str(a.Name) })
		e.Field("mobile", func(e *jx.Encoder) { e.Str(a.Mobile) })
		e.Field("street", func(e *jx.Encoder) { e.Str(a.Street) })
		e.Field("city", func(e *jx.Encoder) { e.Str(a.City) })
		e.Field("state", func(e *jx.Encoder) { e.Str(a.State) })
		e.Field("zip", func(e *jx.Encoder) { e.Str(a.Zip) })
		e.Field("country", func(e *jx.Encoder) { e.Str(a.Country) })
		e.ObjEnd()
	})
	e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, o.Subtotal) })
	e.Field("deliveryFee", func(e *jx.Encoder) { encodeMoney(e, o.DeliveryFee) })
	e.Field("totalAmount", func(e *jx.Encoder) { encodeMoney(e, o.TotalAmount) })
	e.Field("currency", func(e *jx.Encoder) { e.Str(o.Currency) })
	e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
	e.Field("paymentInfo", func(e *jx.Encoder) {
		e.ObjStart()
		e.Field("provider", func(e *jx.Encoder) { e.Str(o.Payment.Provider) })
		e.Field("gatewaySessionId", func(e *jx.Encoder) { e.Str(o.Payment.SessionID) })
		if o.Payment.PaymentID != "" {
			e.Field("gatewayPaymentId", func(e *jx.Encoder) { e.Str(o.Payment.PaymentID) })
		}
		e.ObjEnd()
	})
	e.Field("orderDate", func(e *jx.Encoder) { json.EncodeDateTime(e, o.CreatedAt) })
	e.Field("updatedAt", func(e *jx.Encoder) { json.EncodeDateTime(e, o.UpdatedAt) })
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	encodeOrderFields(e, o)
	e.ObjEnd()
}

func encodeAdminOrder(e *jx.Encoder, o *order.AdminOrder) {
	e.ObjStart()
	encodeOrderFields(e, &o.Order)
	e.Field("user", func(e *jx.Encoder) {
		e.ObjStart()
		e.Field("id", func(e *jx.Encoder) { e.Str(o.Owner.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(o.Owner.Name) })
		e.Field("email", func(e *jx.Encoder) { e.Str(o.Owner.Email) })
		e.ObjEnd()
	})
	e.ObjEnd()
}

func encodePlaceOrder(e *jx.Encoder, res *order.PlaceOrderResult) {
	o := res.Order
	e.ObjStart()
	e.Field("orderId", func(e *jx.Encoder) { e.Str(o.ID) })
	e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
	e.Field("provider", func(e *jx.Encoder) { e.Str(res.Session.Provider) })
	e.Field("gatewaySessionId", func(e *jx.Encoder) { e.Str(res.Session.ID) })
	e.Field("gatewayPublicKey", func(e *jx.Encoder) { e.Str(res.PublicKey) })
	if res.Session.ClientSecret != "" {
		e.Field("clientSecret", func(e *jx.Encoder) { e.Str(res.Session.ClientSecret) })
	}
	e.Field("amountMinorUnits", func(e *jx.Encoder) { e.Int64(res.AmountMinorUnits) })
	e.Field("currency", func(e *jx.Encoder) { e.Str(o.Currency) })
	e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, o.Subtotal) })
	e.Field("deliveryFee", func(e *jx.Encoder) { encodeMoney(e, o.DeliveryFee) })
	e.Field("totalAmount", func(e *jx.Encoder) { encodeMoney(e, o.TotalAmount) })
	e.ObjEnd()
}

func encodeVerify(e *jx.Encoder, res *order.VerifyPaymentResult) {
	o := res.Order
	e.ObjStart()
	e.Field("orderId", func(e *jx.Encoder) { e.Str(o.ID) })
	e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
	e.Field("gatewayPaymentId", func(e *jx.Encoder) { e.Str(o.Payment.PaymentID) })
	e.Field("replayed", func(e *jx.Encoder) { e.Bool(res.Replayed) })
	e.ObjEnd()
}

func encodeOrderList(e *jx.Encoder, orders []order.Order) {
	e.ArrStart()
	for i := range orders {
		encodeOrder(e, &orders[i])
	}
	e.ArrEnd()
}

func encodeOrderPage(e *jx.Encoder, p *order.OrderPage) {
	e.ObjStart()
	e.Field("orders", func(e *jx.Encoder) {
		e.ArrStart()
		for i := range p.Orders {
			encodeAdminOrder(e, &p.Orders[i])
		}
		e.ArrEnd()
	})
	e.Field("count", func(e *jx.Encoder) { e.Int(p.Count) })
	e.Field("pages", func(e *jx.Encoder) { e.Int(p.Pages) })
	e.Field("page", func(e *jx.Encoder) { e.Int(p.Page) })
	e.ObjEnd()
}
