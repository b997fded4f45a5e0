package helpers

import (
	"fmt"
)

// BuildPasswordResetHTML собирает письмо со ссылкой на сброс пароля.
// Приветствие по имени, если оно есть; кнопка плюс запасная ссылка текстом.
func BuildPasswordResetHTML(fullName, link string) string {
	greeting := "Hello,"
	if fullName != "" {
		greeting = fmt.Sprintf("Hello %s,", fullName)
	}

	return fmt.Sprintf(`
<html>
  <body style="font-family:Arial,sans-serif; background:#f9f9f9;">
    <table width="100%%" cellpadding="0" cellspacing="0" bgcolor="#f9f9f9">
      <tr>
        <td align="center" style="padding:32px 0;">
          <table width="500" bgcolor="#fff" cellpadding="24" cellspacing="0" style="border-radius:8px; box-shadow:0 1px 6px #eee;">
            <tr>
              <td>
                <h2 style="color:#0066cc; margin-top:0;">Inventory Manager</h2>
                <div style="font-size:16px; color:#222;">%s</div>
                <p style="margin:24px 0 8px 0;">
                  We received a request to reset the password for your Inventory Manager account.
                </p>
                <p style="margin:0 0 24px 0;">
                  Click the button below to reset your password. This link expires in <strong>1 hour</strong>.
                </p>
                <p>
                  <a href="%s" style="display:inline-block;padding:12px 24px;background:#0066cc;color:#fff;text-decoration:none;border-radius:5px;font-weight:bold;">
                    Reset Password
                  </a>
                </p>
                <p style="font-size:12px;color:#999;margin-top:16px;">
                  If the button doesn't work, copy and paste this link into your browser:<br>
                  <span style="word-break:break-all;color:#0066cc;">%s</span>
                </p>
                <hr style="margin:32px 0 16px 0; border:0; border-top:1px solid #eee;">
                <div style="font-size:12px; color:#999;">
                  <strong>If you did not request a password reset</strong>, please ignore this message.
                </div>
              </td>
            </tr>
          </table>
        </td>
      </tr>
    </table>
  </body>
</html>
`, greeting, link, link)
}
