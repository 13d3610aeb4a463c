package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"movetrack/internal/config"
	"movetrack/internal/domain"
)

// Email is a rendered message for one recipient.
type Email struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// MailSink renders one email per recipient entry and hands it to an SMTP server.
type MailSink struct {
	Config config.MailConfig
	Send   SendFunc
}

func NewMailSink(cfg config.MailConfig) *MailSink {
	return &MailSink{Config: cfg, Send: smtp.SendMail}
}

func (*MailSink) Name() string { return "mail" }

func (s *MailSink) Deliver(ctx context.Context, msg Message) error {
	addr := net.JoinHostPort(s.Config.Host, strconv.Itoa(s.port()))
	var auth smtp.Auth
	if s.Config.Username != "" {
		auth = smtp.PlainAuth("", s.Config.Username, s.Config.Password, s.Config.Host)
	}
	var errs []error
	for _, it := range msg.Items {
		for _, r := range it.Recipients {
			if err := ctx.Err(); err != nil {
				return errors.Join(append(errs, err)...)
			}
			email := BuildEmail(msg.Event, it, r, s.Config.SiteName, s.Config.AppURL)
			if err := s.Send(addr, auth, s.Config.From, []string{email.To}, email.mime(s.Config.From)); err != nil {
				errs = append(errs, fmt.Errorf("send to %s: %w", r.Email, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (s *MailSink) port() int {
	if s.Config.Port > 0 {
		return s.Config.Port
	}
	return 587
}

type emailData struct {
	SiteName      string
	AppURL        string
	Event         Event
	RecipientName string
	TeamName      string
	Movement      MovementSummary
	DaysRemaining int
	UpdatedBy     string
}

// BuildEmail renders the text and HTML bodies for one recipient.
func BuildEmail(evt Event, n Notification, r domain.Recipient, siteName, appURL string) Email {
	if siteName == "" {
		siteName = "Movetrack"
	}
	data := emailData{
		SiteName:      siteName,
		AppURL:        appURL,
		Event:         evt,
		RecipientName: r.Name,
		TeamName:      r.TeamName,
		Movement:      n.Movement,
		DaysRemaining: n.DaysRemaining,
		UpdatedBy:     n.UpdatedBy,
	}
	return Email{
		To:       r.Email,
		Subject:  subject(data),
		TextBody: buildText(data),
		HTMLBody: buildHTML(data),
	}
}

func subject(d emailData) string {
	switch d.Event {
	case EventMovementCreated:
		return fmt.Sprintf("[%s] New %s: %s", d.SiteName, strings.ToLower(d.Movement.TypeLabel), d.Movement.EmployeeName)
	case EventMovementUpdated:
		return fmt.Sprintf("[%s] %s updated: %s", d.SiteName, d.Movement.TypeLabel, d.Movement.EmployeeName)
	default:
		return fmt.Sprintf("[%s] Reminder: %s due in %s", d.SiteName, d.Movement.EmployeeName, dayWord(d.DaysRemaining))
	}
}

func dayWord(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

func buildText(d emailData) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Hello %s,\n\n", d.RecipientName)
	switch d.Event {
	case EventMovementCreated:
		fmt.Fprintf(&buf, "A new %s was opened for %s and your team (%s) needs to respond.\n", strings.ToLower(d.Movement.TypeLabel), d.Movement.EmployeeName, d.TeamName)
	case EventMovementUpdated:
		fmt.Fprintf(&buf, "The %s for %s was updated by %s.\n", strings.ToLower(d.Movement.TypeLabel), d.Movement.EmployeeName, d.UpdatedBy)
	default:
		fmt.Fprintf(&buf, "Your team (%s) still has to respond to the %s for %s. The deadline is in %s.\n", d.TeamName, strings.ToLower(d.Movement.TypeLabel), d.Movement.EmployeeName, dayWord(d.DaysRemaining))
	}
	if d.Movement.Deadline != "" {
		fmt.Fprintf(&buf, "Deadline: %s\n", d.Movement.Deadline)
	}
	fmt.Fprintf(&buf, "Opened by: %s\n", d.Movement.CreatedBy)
	if d.AppURL != "" {
		fmt.Fprintf(&buf, "\n%s/movements/%s\n", strings.TrimRight(d.AppURL, "/"), d.Movement.ID)
	}
	return buf.String()
}

var htmlTmpl = template.Must(template.New("movement").Funcs(template.FuncMap{
	"lower":   strings.ToLower,
	"dayWord": dayWord,
}).Parse(movementHTMLTemplate))

func buildHTML(d emailData) string {
	var buf bytes.Buffer
	_ = htmlTmpl.Execute(&buf, d)
	return buf.String()
}

func (e Email) mime(from string) []byte {
	boundary := "mt-" + uuid.NewString()
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", e.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", e.Subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&buf, "--%s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n", boundary, e.TextBody)
	fmt.Fprintf(&buf, "--%s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n", boundary, e.HTMLBody)
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes()
}

const movementHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.SiteName}}</title>
</head>
<body style="margin: 0; padding: 24px; font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; background-color: #f3f4f6;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width: 520px; margin: 0 auto; background-color: #ffffff; border-radius: 8px;">
    <tr>
      <td style="padding: 24px; border-bottom: 1px solid #e5e7eb;">
        <h1 style="margin: 0; font-size: 20px; color: #4f46e5;">{{.SiteName}}</h1>
      </td>
    </tr>
    <tr>
      <td style="padding: 24px; color: #374151; font-size: 15px; line-height: 1.5;">
        <p>Hello {{.RecipientName}},</p>
        {{if eq .Event "movement_created"}}
        <p>A new {{lower .Movement.TypeLabel}} was opened for <strong>{{.Movement.EmployeeName}}</strong> and your team ({{.TeamName}}) needs to respond.</p>
        {{else if eq .Event "movement_updated"}}
        <p>The {{lower .Movement.TypeLabel}} for <strong>{{.Movement.EmployeeName}}</strong> was updated by {{.UpdatedBy}}.</p>
        {{else}}
        <p>Your team ({{.TeamName}}) still has to respond to the {{lower .Movement.TypeLabel}} for <strong>{{.Movement.EmployeeName}}</strong>. The deadline is in {{dayWord .DaysRemaining}}.</p>
        {{end}}
        {{if .Movement.Deadline}}<p>Deadline: {{.Movement.Deadline}}</p>{{end}}
        <p style="color: #6b7280;">Opened by {{.Movement.CreatedBy}}</p>
        {{if .AppURL}}<p><a href="{{.AppURL}}/movements/{{.Movement.ID}}">Open movement</a></p>{{end}}
      </td>
    </tr>
  </table>
</body>
</html>`
