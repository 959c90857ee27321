package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const brevoAPI = "https://api.brevo.com/v3/smtp/email"

// ErrNoRecipient is returned when the investor has no email on file.
var ErrNoRecipient = errors.New("investor has no email")

var defaultClient = &http.Client{Timeout: 15 * time.Second}

// BrevoSendRequest matches Brevo API v3 send transactional email body.
type BrevoSendRequest struct {
	Sender      BrevoContact   `json:"sender"`
	To          []BrevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	ReplyTo     *BrevoContact  `json:"replyTo,omitempty"`
}

type BrevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// BrevoDispatcher sends investor emails via Brevo (Sendinblue). An empty APIKey disables sending.
type BrevoDispatcher struct {
	APIKey    string
	MailFrom  string
	PortalURL string
	// Endpoint overrides the Brevo URL; tests point it at httptest.
	Endpoint string
	// Client is read only; nil uses a shared client with a 15s timeout.
	Client *http.Client
}

func (d *BrevoDispatcher) from() string {
	if d.MailFrom != "" {
		return d.MailFrom
	}
	return "noreply@ciclik.com.br"
}

func (d *BrevoDispatcher) endpoint() string {
	if d.Endpoint != "" {
		return d.Endpoint
	}
	return brevoAPI
}

func (d *BrevoDispatcher) send(ctx context.Context, to BrevoContact, subject, html string) error {
	body := BrevoSendRequest{
		Sender:      BrevoContact{Email: d.from(), Name: "Ciclik"},
		To:          []BrevoContact{to},
		Subject:     subject,
		HTMLContent: html,
		ReplyTo:     &BrevoContact{Email: "cdv@ciclik.com.br", Name: "Ciclik CDV"},
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint(), bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", d.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	client := d.Client
	if client == nil {
		client = defaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("brevo send failed: status %d", resp.StatusCode)
	}
	return nil
}

// SendInvestorInvite sends the dashboard access email after an investor's first quota.
func (d *BrevoDispatcher) SendInvestorInvite(ctx context.Context, invite InvestorInvite) error {
	if d.APIKey == "" {
		return nil
	}
	if invite.Email == "" {
		return ErrNoRecipient
	}
	name := invite.ContactName
	if name == "" {
		name = invite.LegalName
	}
	subject := "Acesso ao Dashboard - Ciclik Digital Verde"
	if invite.Resend {
		subject = "Lembrete: " + subject
	}
	content := inviteContent(name, invite.LegalName, invite.ProjectTitle, invite.Quotas, d.PortalURL)
	return d.send(ctx, BrevoContact{Email: invite.Email, Name: name}, subject, EmailLayout(content))
}

func inviteContent(name, legalName, project string, quotas int, portalURL string) string {
	return fmt.Sprintf(`
    <h1>Olá, %s!</h1>
    <p><strong>%s</strong> agora possui %d cota(s) do Certificado Digital Verde no projeto <strong>%s</strong>.</p>
    <p>Acompanhe a maturação das suas cotas e baixe seus certificados pelo painel do investidor:</p>
    <center>
      <a href="%s" class="cdv-button">Acessar o painel</a>
    </center>
    <p style="margin-top:20px;font-size:14px;color:#666;">
      Se você não esperava este e-mail, pode ignorá-lo com segurança.
    </p>
    <p>Equipe Ciclik</p>
`, EscapeHTML(name), EscapeHTML(legalName), quotas, EscapeHTML(project), portalURL)
}
