// Package utils holds small helpers shared by the handlers.
package utils

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/skip2/go-qrcode"

	"shoemart_back_end/internal/models"
)

// ShippingLabel is the payload printed as a QR code on the parcel of one item.
type ShippingLabel struct {
	OrderNumber string `json:"order_id"`
	ItemID      string `json:"item_id"`
	VendorID    string `json:"vendor_id"`
	TrackingID  string `json:"tracking_id,omitempty"`
	SKU         string `json:"sku"`
	Quantity    int    `json:"qty"`
	COD         bool   `json:"cod"`
	ShipTo      string `json:"ship_to"`
	Phone       string `json:"phone"`
	PostalCode  string `json:"postal_code"`
}

func NewShippingLabel(o models.Order, it models.OrderItem) ShippingLabel {
	a := o.ShippingAddress
	return ShippingLabel{
		OrderNumber: o.Number,
		ItemID:      it.ID,
		VendorID:    it.VendorID,
		TrackingID:  it.TrackingID,
		SKU:         it.Key().String(),
		Quantity:    it.Quantity,
		COD:         o.PaymentMethod == models.PaymentCOD && o.PaymentStatus != models.PaymentPaid,
		ShipTo:      fmt.Sprintf("%s, %s, %s", a.Name, a.Line1, a.City),
		Phone:       a.Phone,
		PostalCode:  a.PostalCode,
	}
}

// LabelQR renders the label as a PNG QR code of size x size pixels.
func LabelQR(l ShippingLabel, size int) ([]byte, error) {
	payload, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(string(payload), qrcode.Medium, size)
}

// LabelQRDataURL is LabelQR ready to drop into <img src="...">.
func LabelQRDataURL(l ShippingLabel, size int) (string, error) {
	png, err := LabelQR(l, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
