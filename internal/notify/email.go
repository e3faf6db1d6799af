package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

// EmailNotifier mails every recipient that has an email address.
type EmailNotifier struct {
	client   *mailersend.Mailersend
	from     mailersend.From
	location *time.Location
	Enabled  bool
}

func NewEmailNotifier(apiKey, fromName, fromEmail string, location *time.Location) *EmailNotifier {
	m := &EmailNotifier{
		Enabled: apiKey != "" && fromEmail != "",
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
		location: location,
	}
	if m.Enabled {
		m.client = mailersend.NewMailersend(apiKey)
	}
	return m
}

func (m *EmailNotifier) Notify(ctx context.Context, n Notification) error {
	if !m.Enabled {
		return nil
	}

	var errs []error
	for _, r := range n.Recipients {
		if r.Email == "" {
			continue
		}
		if err := m.send(ctx, r, n); err != nil {
			errs = append(errs, fmt.Errorf("email %s: %w", r.Email, err))
		}
	}
	return errors.Join(errs...)
}

func (m *EmailNotifier) send(ctx context.Context, r Recipient, n Notification) error {
	text := n.Text(m.location)

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: r.Name, Email: r.Email}})
	msg.SetSubject(n.Subject())
	msg.SetText(text)
	msg.SetHTML(renderHTML(text))

	res, err := m.client.Email.Send(ctx, msg)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("mailersend error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func renderHTML(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	var b strings.Builder
	for i, line := range lines {
		if line == "" {
			continue
		}
		if i == 0 {
			fmt.Fprintf(&b, "<h3>%s</h3>", html.EscapeString(line))
			continue
		}
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(line))
	}
	return b.String()
}
