package utils

import "strings"

// NormalizePhone remove tudo que não é dígito e prefixa o DDI 55 quando o
// número vem no formato nacional (DDD + número, 10 ou 11 dígitos).
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 10 || len(digits) == 11 {
		digits = "55" + digits
	}
	return digits
}
