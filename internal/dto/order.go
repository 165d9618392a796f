package dto

import (
	"encoding/json"

	"github.com/Additional-Code/palate/internal/entity"
)

// CreateOrderRequest is the storefront payload for a new order. It carries
// the rendered notification bodies alongside the order fields.
type CreateOrderRequest struct {
	CustomerName    string            `json:"customer_name"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerPhone   string            `json:"customer_phone"`
	CustomerAddress string            `json:"customer_address"`
	ShabbosLabel    string            `json:"shabbos_label"`
	Allergies       string            `json:"allergies"`
	Total           string            `json:"total"`
	Items           []entity.LineItem `json:"items"`
	EmailBody       string            `json:"email_body"`
	HTMLBody        string            `json:"html_body"`
	// PDFDataURL is an optional data:application/pdf;base64 URL.
	PDFDataURL string `json:"pdf_data_url"`
}

// Order maps the request onto a new order entity.
func (r CreateOrderRequest) Order() *entity.Order {
	items := r.Items
	if items == nil {
		items = []entity.LineItem{}
	}
	return &entity.Order{
		CustomerName:    r.CustomerName,
		CustomerEmail:   r.CustomerEmail,
		CustomerPhone:   r.CustomerPhone,
		CustomerAddress: r.CustomerAddress,
		ShabbosLabel:    r.ShabbosLabel,
		Allergies:       r.Allergies,
		Total:           r.Total,
		Items:           items,
		EmailBody:       r.EmailBody,
		HTMLBody:        r.HTMLBody,
	}
}

// CreateOrderResponse reports the identifiers assigned to a new order.
type CreateOrderResponse struct {
	ID          int64 `json:"id"`
	OrderNumber int64 `json:"order_number"`
}

// StatusRequest sets an order's status.
type StatusRequest struct {
	Status string `json:"status"`
}

// PatchRequest wraps a sparse field update. Clients may also send the
// fieldset itself as the body.
type PatchRequest struct {
	Patch map[string]json.RawMessage `json:"patch"`
}

// OKResponse acknowledges an update without a body.
type OKResponse struct {
	OK bool `json:"ok"`
}
