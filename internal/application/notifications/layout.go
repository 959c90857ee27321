package notifications

import (
	"fmt"
	"strings"
	"time"
)

const (
	themePrimary   = "#2E7D32"
	themeTextMain  = "#1F2937"
	themeTextMuted = "#6B7280"
	themeBgBody    = "#F3F4F6"
	themeWhite     = "#FFFFFF"
)

// EmailLayout wraps content in the shared CDV email frame.
func EmailLayout(contentHTML string) string {
	year := time.Now().Year()
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="pt-BR">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Ciclik CDV</title>
  <style>
    body { margin: 0; padding: 0; background-color: %s; font-family: -apple-system, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; color: %s; }
    .content-body p { margin: 0 0 24px 0; font-size: 16px; line-height: 1.6; }
    .content-body h1 { font-size: 24px; margin: 0 0 20px 0; }
    .cdv-button { display: inline-block; background-color: %s; color: #ffffff !important; padding: 12px 32px; text-decoration: none; border-radius: 6px; font-weight: 600; }
    .footer-text { color: %s; font-size: 13px; }
  </style>
</head>
<body>
  <table role="presentation" width="100%%" cellspacing="0" cellpadding="0" style="background-color: %s;">
    <tr>
      <td align="center" style="padding: 40px 0;">
        <table role="presentation" width="600" cellspacing="0" cellpadding="0" style="background-color: %s; border-radius: 8px;">
          <tr><td class="content-body" style="padding: 40px 48px 30px 48px;">%s</td></tr>
          <tr><td class="footer-text" align="center" style="padding: 0 48px 32px 48px;">&copy; %d Ciclik. Certificado Digital Verde.</td></tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`, themeBgBody, themeTextMain, themePrimary, themeTextMuted, themeBgBody, themeWhite, contentHTML, year)
}

// EscapeHTML escapes user-provided text placed into email bodies.
func EscapeHTML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&#39;")
	return r.Replace(s)
}
