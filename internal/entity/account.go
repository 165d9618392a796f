package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Account is a storefront customer login.
type Account struct {
	bun.BaseModel `bun:"table:users"`

	ID           int64     `bun:"id,pk,autoincrement" json:"id"`
	Email        string    `bun:"email" json:"email"`
	PasswordHash string    `bun:"password_hash" json:"-"`
	Name         string    `bun:"name" json:"name"`
	Phone        string    `bun:"phone" json:"phone"`
	Address      string    `bun:"address" json:"address"`
	CreatedAt    time.Time `bun:"created_at" json:"created_at"`
}
