package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// StatusNew is assigned to freshly created orders.
const StatusNew = "new"

// LineItem is one entry of an order's item list. Entries are stored as the
// client sent them; objects decode as map[string]any.
type LineItem = any

// Order is a catering request as persisted in the orders table.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID              int64      `bun:"id,pk,autoincrement" json:"id"`
	OrderNumber     int64      `bun:"order_number" json:"order_number"`
	CreatedAt       time.Time  `bun:"created_at" json:"created_at"`
	Status          string     `bun:"status" json:"status"`
	CustomerName    string     `bun:"customer_name" json:"customer_name"`
	CustomerEmail   string     `bun:"customer_email" json:"customer_email"`
	CustomerPhone   string     `bun:"customer_phone" json:"customer_phone"`
	CustomerAddress string     `bun:"customer_address" json:"customer_address"`
	ShabbosLabel    string     `bun:"shabbos_label" json:"shabbos_label"`
	Allergies       string     `bun:"allergies" json:"allergies"`
	Total           string     `bun:"total" json:"total"`
	Items           []LineItem `bun:"items,type:jsonb" json:"items"`
	EmailBody       string     `bun:"email_body" json:"email_body"`
	HTMLBody        string     `bun:"html_body" json:"html_body"`
}
