package notification

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gopkg.in/gomail.v2"

	"github.com/Additional-Code/palate/internal/config"
	"github.com/Additional-Code/palate/internal/entity"
)

type fakeMailer struct {
	mu     sync.Mutex
	sent   []*gomail.Message
	failTo map[string]error
	delay  time.Duration
}

func (f *fakeMailer) DialAndSend(msgs ...*gomail.Message) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		if err, ok := f.failTo[m.GetHeader("To")[0]]; ok {
			return err
		}
		f.sent = append(f.sent, m)
	}
	return nil
}

func (f *fakeMailer) byTo(to string) *gomail.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.sent {
		if m.GetHeader("To")[0] == to {
			return m
		}
	}
	return nil
}

func mailConfig() config.Mail {
	return config.Mail{
		Enabled:  true,
		Host:     "smtp.example.com",
		Port:     465,
		Username: "orders@palate.test",
		Password: "pw",
		FromName: "Palate Catering",
		To:       []string{"kitchen@palate.test"},
		CC:       []string{"owner@palate.test"},
		Timeout:  time.Second,
	}
}

func notificationFor(email string) Notification {
	return Notification{
		Order: entity.Order{
			OrderNumber:   1600,
			CustomerEmail: email,
			ShabbosLabel:  "Parshas Noach",
		},
		Text: "2x Challah",
		HTML: "<p>2x Challah</p>",
		PDF:  []byte("%PDF-1.4"),
	}
}

func render(t *testing.T, m *gomail.Message) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func TestDispatch_StaffAndCustomer(t *testing.T) {
	mailer := &fakeMailer{}
	d := NewWithMailer(mailConfig(), mailer, nil)

	require.NoError(t, d.Dispatch(context.Background(), notificationFor("rivka@example.com")))
	require.Len(t, mailer.sent, 2)

	staff := mailer.byTo("kitchen@palate.test")
	require.NotNil(t, staff)
	assert.Equal(t, []string{"New Palate Shabbos Order #1600 - Parshas Noach"}, staff.GetHeader("Subject"))
	assert.Equal(t, []string{"owner@palate.test"}, staff.GetHeader("Cc"))
	assert.Equal(t, []string{"rivka@example.com"}, staff.GetHeader("Reply-To"))
	assert.Equal(t, []string{`"Palate Catering" <orders@palate.test>`}, staff.GetHeader("From"))
	assert.Contains(t, render(t, staff), AttachmentName)

	customer := mailer.byTo("rivka@example.com")
	require.NotNil(t, customer)
	assert.Equal(t, []string{"Your Palate Shabbos Order #1600 - Parshas Noach"}, customer.GetHeader("Subject"))
	assert.Empty(t, customer.GetHeader("Cc"))
}

func TestDispatch_NoCustomerEmail(t *testing.T) {
	mailer := &fakeMailer{}
	cfg := mailConfig()
	cfg.ReplyTo = "desk@palate.test"
	d := NewWithMailer(cfg, mailer, nil)

	n := notificationFor("")
	n.Order.ShabbosLabel = ""
	require.NoError(t, d.Dispatch(context.Background(), n))
	require.Len(t, mailer.sent, 1)

	staff := mailer.sent[0]
	assert.Equal(t, []string{"New Palate Shabbos Order #1600 - New Order"}, staff.GetHeader("Subject"))
	assert.Equal(t, []string{"desk@palate.test"}, staff.GetHeader("Reply-To"))
}

func TestDispatch_FailuresCollected(t *testing.T) {
	mailer := &fakeMailer{failTo: map[string]error{
		"kitchen@palate.test": errors.New("535 auth failed"),
		"rivka@example.com":   errors.New("550 mailbox unavailable"),
	}}
	d := NewWithMailer(mailConfig(), mailer, nil)

	err := d.Dispatch(context.Background(), notificationFor("rivka@example.com"))
	require.Error(t, err)

	errs := multierr.Errors(err)
	assert.Len(t, errs, 2)
	joined := err.Error()
	assert.Contains(t, joined, "staff email: 535 auth failed")
	assert.Contains(t, joined, "customer email: 550 mailbox unavailable")
}

func TestDispatch_OneFailureDoesNotBlockOther(t *testing.T) {
	mailer := &fakeMailer{failTo: map[string]error{"rivka@example.com": errors.New("bounce")}}
	d := NewWithMailer(mailConfig(), mailer, nil)

	err := d.Dispatch(context.Background(), notificationFor("rivka@example.com"))
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.NotNil(t, mailer.byTo("kitchen@palate.test"))
}

func TestDispatch_NotConfigured(t *testing.T) {
	cfg := mailConfig()
	cfg.Password = ""
	mailer := &fakeMailer{}

	err := NewWithMailer(cfg, mailer, nil).Dispatch(context.Background(), notificationFor("a@b.c"))
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Empty(t, mailer.sent)
}

func TestDispatch_Timeout(t *testing.T) {
	cfg := mailConfig()
	cfg.Timeout = 10 * time.Millisecond
	mailer := &fakeMailer{delay: 200 * time.Millisecond}

	err := NewWithMailer(cfg, mailer, nil).Dispatch(context.Background(), notificationFor(""))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRenderHTML(t *testing.T) {
	assert.Equal(t, "<b>hi</b>", RenderHTML("  <b>hi</b> ", "ignored"))
	assert.Equal(t,
		`<pre style="font-family:Arial,sans-serif;white-space:pre-wrap;">1 &lt;kugel&gt;</pre>`,
		RenderHTML("", " 1 <kugel> "),
	)
}

func TestDecodePDF(t *testing.T) {
	pdf := []byte("%PDF-1.7 body")
	good := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(pdf)

	got, err := DecodePDF(good)
	require.NoError(t, err)
	assert.Equal(t, pdf, got)

	got, err = DecodePDF("")
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, bad := range []string{
		"data:image/png;base64,AAAA",
		"data:application/pdf;base64",
		"data:application/pdf;base64,!!!",
	} {
		_, err := DecodePDF(bad)
		assert.Error(t, err, bad)
	}
}

func TestStaffMessage_TextFallback(t *testing.T) {
	d := NewWithMailer(mailConfig(), &fakeMailer{}, nil)
	n := notificationFor("")
	n.HTML = ""
	n.PDF = nil

	body := render(t, d.staffMessage(n))
	assert.True(t, strings.Contains(body, "white-space:pre-wrap"))
	assert.False(t, strings.Contains(body, AttachmentName))
}
