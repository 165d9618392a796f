// Package notification emails staff and customers about new orders.
package notification

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/Additional-Code/palate/internal/config"
	"github.com/Additional-Code/palate/internal/entity"
)

// Module provides the dispatcher to Fx.
var Module = fx.Provide(New)

var tracer = otel.Tracer("github.com/Additional-Code/palate/notification")

// AttachmentName is the filename of the order PDF in outgoing mail.
const AttachmentName = "palate-order.pdf"

// ErrNotConfigured is returned when SMTP credentials or staff recipients are missing.
var ErrNotConfigured = errors.New("email not configured")

// Mailer delivers composed messages. *gomail.Dialer satisfies it.
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Notification is everything needed to announce one order.
type Notification struct {
	Order entity.Order
	Text  string
	HTML  string
	PDF   []byte
}

// Dispatcher sends the staff and customer emails for a new order.
type Dispatcher struct {
	cfg    config.Mail
	mailer Mailer
	logger *zap.Logger
}

// New constructs a Dispatcher that talks SMTP through gomail.
func New(cfg config.Config, logger *zap.Logger) *Dispatcher {
	mail := cfg.Mail
	return NewWithMailer(mail, gomail.NewDialer(mail.Host, mail.Port, mail.Username, mail.Password), logger)
}

// NewWithMailer constructs a Dispatcher on an explicit transport.
func NewWithMailer(cfg config.Mail, mailer Mailer, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{cfg: cfg, mailer: mailer, logger: logger}
}

// Dispatch sends staff and customer mail concurrently. Each failed send
// contributes one error to the returned multierr value; callers treat it
// as a warning.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) error {
	ctx, span := tracer.Start(ctx, "Dispatcher.Dispatch")
	defer span.End()

	if !d.cfg.Configured() {
		return ErrNotConfigured
	}

	messages := map[string]*gomail.Message{"staff": d.staffMessage(n)}
	if n.Order.CustomerEmail != "" {
		messages["customer"] = d.customerMessage(n)
	}

	var (
		mu   sync.Mutex
		errs error
		wg   sync.WaitGroup
	)
	for audience, msg := range messages {
		wg.Add(1)
		go func(audience string, msg *gomail.Message) {
			defer wg.Done()
			if err := d.send(ctx, msg); err != nil {
				d.logger.Warn("order email failed",
					zap.String("audience", audience),
					zap.Int64("order_number", n.Order.OrderNumber),
					zap.Error(err),
				)
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s email: %w", audience, err))
				mu.Unlock()
			}
		}(audience, msg)
	}
	wg.Wait()

	if errs != nil {
		span.RecordError(errs)
	}
	return errs
}

func (d *Dispatcher) send(ctx context.Context, msg *gomail.Message) error {
	timeout := d.cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.mailer.DialAndSend(msg) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) staffMessage(n Notification) *gomail.Message {
	label := n.Order.ShabbosLabel
	if label == "" {
		label = "New Order"
	}
	m := d.base(n)
	m.SetHeader("To", d.cfg.To...)
	if len(d.cfg.CC) > 0 {
		m.SetHeader("Cc", d.cfg.CC...)
	}
	m.SetHeader("Subject", fmt.Sprintf("New Palate Shabbos Order #%d - %s", n.Order.OrderNumber, label))
	return m
}

func (d *Dispatcher) customerMessage(n Notification) *gomail.Message {
	subject := fmt.Sprintf("Your Palate Shabbos Order #%d", n.Order.OrderNumber)
	if n.Order.ShabbosLabel != "" {
		subject += " - " + n.Order.ShabbosLabel
	}
	m := d.base(n)
	m.SetHeader("To", n.Order.CustomerEmail)
	m.SetHeader("Subject", subject)
	return m
}

func (d *Dispatcher) base(n Notification) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", d.cfg.Username, d.cfg.FromName)

	replyTo := d.cfg.ReplyTo
	if replyTo == "" {
		replyTo = n.Order.CustomerEmail
	}
	if replyTo != "" {
		m.SetHeader("Reply-To", replyTo)
	}

	text := strings.TrimSpace(n.Text)
	body := RenderHTML(n.HTML, text)
	if text != "" {
		m.SetBody("text/plain", text)
		m.AddAlternative("text/html", body)
	} else {
		m.SetBody("text/html", body)
	}

	if len(n.PDF) > 0 {
		pdf := n.PDF
		m.Attach(AttachmentName,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(pdf)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {"application/pdf"}}),
		)
	}
	return m
}

// RenderHTML returns the HTML body, falling back to the escaped text body
// in a preformatted block.
func RenderHTML(htmlBody, text string) string {
	if b := strings.TrimSpace(htmlBody); b != "" {
		return b
	}
	return `<pre style="font-family:Arial,sans-serif;white-space:pre-wrap;">` +
		html.EscapeString(strings.TrimSpace(text)) + `</pre>`
}

// DecodePDF decodes a data:application/pdf;base64 URL. An empty input yields
// no attachment and no error.
func DecodePDF(dataURL string) ([]byte, error) {
	if dataURL == "" {
		return nil, nil
	}
	if !strings.HasPrefix(dataURL, "data:application/pdf") {
		return nil, fmt.Errorf("attachment is not a PDF data URL")
	}
	_, payload, ok := strings.Cut(dataURL, ",")
	if !ok {
		return nil, fmt.Errorf("attachment data URL has no payload")
	}
	pdf, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode attachment: %w", err)
	}
	return pdf, nil
}
