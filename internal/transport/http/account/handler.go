package account

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/Additional-Code/palate/internal/dto"
	"github.com/Additional-Code/palate/internal/entity"
	"github.com/Additional-Code/palate/internal/presentation/http/response"
	service "github.com/Additional-Code/palate/internal/service/account"
	"github.com/Additional-Code/palate/pkg/errorbank"
)

// Module wires HTTP account handlers.
var Module = fx.Options(
	fx.Provide(
		func(s *service.Service) Service { return s },
		NewHandler,
	),
	fx.Invoke(Register),
)

// Service is the account behaviour the handlers expose.
type Service interface {
	Register(ctx context.Context, acc entity.Account, password string) (service.Session, error)
	Login(ctx context.Context, email, password string) (service.Session, error)
	Current(ctx context.Context, token string) (entity.Account, error)
}

// Handler exposes customer account endpoints.
type Handler struct {
	svc Service
}

// NewHandler constructs an account Handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the routes under /accounts.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/accounts")
	g.POST("/register", h.register)
	g.POST("/login", h.login)
	g.GET("/me", h.me)
}

func (h *Handler) register(c echo.Context) error {
	b := response.New(c)

	var payload dto.RegisterRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	sess, err := h.svc.Register(c.Request().Context(), entity.Account{
		Email:   payload.Email,
		Name:    payload.Name,
		Phone:   payload.Phone,
		Address: payload.Address,
	}, payload.Password)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toSession(sess)).Build()
}

func (h *Handler) login(c echo.Context) error {
	b := response.New(c)

	var payload dto.LoginRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	sess, err := h.svc.Login(c.Request().Context(), payload.Email, payload.Password)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toSession(sess)).Build()
}

func (h *Handler) me(c echo.Context) error {
	b := response.New(c)

	token, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
	if !ok || token == "" {
		return b.WithError(errorbank.Unauthorized("missing bearer token")).Build()
	}

	acc, err := h.svc.Current(c.Request().Context(), token)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewAccountResponse(acc)).Build()
}

func toSession(sess service.Session) dto.SessionResponse {
	return dto.SessionResponse{Token: sess.Token, User: dto.NewAccountResponse(sess.Account)}
}
