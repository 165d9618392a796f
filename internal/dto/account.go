package dto

import "github.com/Additional-Code/palate/internal/entity"

// RegisterRequest creates a customer account.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

// LoginRequest authenticates a customer.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AccountResponse is the public view of an account.
type AccountResponse struct {
	ID      int64  `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// SessionResponse pairs a bearer token with its account.
type SessionResponse struct {
	Token string          `json:"token"`
	User  AccountResponse `json:"user"`
}

// NewAccountResponse strips private fields from an account.
func NewAccountResponse(acc entity.Account) AccountResponse {
	return AccountResponse{
		ID:      acc.ID,
		Email:   acc.Email,
		Name:    acc.Name,
		Phone:   acc.Phone,
		Address: acc.Address,
	}
}
