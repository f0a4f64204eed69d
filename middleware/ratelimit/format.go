package ratelimit

import (
	"strconv"
	"time"
)

// Formatação dos valores numéricos dos headers X-RateLimit-* e Retry-After.
// FormatFloat com precisão -1 evita notação científica nos valores comuns.

func formatInt(v int) string { return strconv.Itoa(v) }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatSeconds escreve a janela em segundos fracionários ("2", "0.5").
func formatSeconds(d time.Duration) string {
	return formatFloat(d.Seconds())
}

// retryAfterSeconds arredonda para cima: Retry-After=0 convidaria o cliente a repetir na hora.
func retryAfterSeconds(d time.Duration) int {
	s := int(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}
