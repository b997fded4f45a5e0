package services

// PolicyCheck — результат одного правила парольной политики.
type PolicyCheck struct {
	Rule    string
	Message string
	OK      bool
}

// PolicyResult — итог проверки пароля по всем правилам.
// Правила считаются независимо (без короткого замыкания), чтобы UI
// мог показать, какие именно выполнены; эндпоинт сброса отдаёт
// только первое нарушение.
type PolicyResult struct {
	Checks []PolicyCheck
}

func (r PolicyResult) Valid() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// FirstViolation возвращает сообщение первого нарушенного правила
// (пустая строка, если пароль валиден).
func (r PolicyResult) FirstViolation() string {
	for _, c := range r.Checks {
		if !c.OK {
			return c.Message
		}
	}
	return ""
}

// ValidatePassword — чистая функция, без побочных эффектов.
func ValidatePassword(password string) PolicyResult {
	// Классы символов намеренно ASCII: всё вне [A-Za-z0-9] — спецсимвол.
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, ch := range password {
		switch {
		case ch >= 'A' && ch <= 'Z':
			hasUpper = true
		case ch >= 'a' && ch <= 'z':
			hasLower = true
		case ch >= '0' && ch <= '9':
			hasDigit = true
		default:
			hasSpecial = true
		}
	}

	return PolicyResult{Checks: []PolicyCheck{
		{Rule: "min_length", Message: "Password must be at least 10 characters long", OK: len(password) >= 10},
		{Rule: "uppercase", Message: "Password must contain at least one uppercase letter", OK: hasUpper},
		{Rule: "lowercase", Message: "Password must contain at least one lowercase letter", OK: hasLower},
		{Rule: "digit", Message: "Password must contain at least one number", OK: hasDigit},
		{Rule: "special", Message: "Password must contain at least one special character", OK: hasSpecial},
	}}
}
