package utils

import "strings"

// MaskIdentifier маскирует email или логин для логов: "jdoe@mail.com" → "jd***@mail.com",
// "johndoe" → "jo***". Полные идентификаторы в логи не пишем.
func MaskIdentifier(s string) string {
	if s == "" {
		return ""
	}

	local := s
	domain := ""
	if at := strings.IndexByte(s, '@'); at >= 0 {
		local, domain = s[:at], s[at:]
	}

	if local == "" {
		return "***" + domain
	}
	if len(local) <= 2 {
		return local[:1] + "***" + domain
	}
	return local[:2] + "***" + domain
}
