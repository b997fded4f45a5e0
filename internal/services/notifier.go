// internal/services/notifier.go
package services

import (
	"context"
	"fmt"
	helpers "invman/internal/utils/helpres"
)

// ResetNotifier отправляет письмо со ссылкой на сброс пароля.
// Сбои доставки не доходят до вызывающего HTTP-ответа — их глотает
// и логирует сервис сброса.
type ResetNotifier struct {
	email    *EmailService
	fromName string
}

func NewResetNotifier(email *EmailService, fromName string) *ResetNotifier {
	return &ResetNotifier{email: email, fromName: fromName}
}

func (n *ResetNotifier) SendResetLink(_ context.Context, to, fullName, link string) error {
	subject := fmt.Sprintf("%s — Password Reset Request", n.fromName)
	html := helpers.BuildPasswordResetHTML(fullName, link)

	return n.email.Send([]string{to}, subject, html)
}
