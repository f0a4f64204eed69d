package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"slidingwindow-gateway/middleware/ratelimit/domain"
)

// envReader lê variáveis com padrão. Variável ausente ou vazia usa o padrão;
// valor presente mas inválido fica registrado em err (o primeiro apenas).
type envReader struct {
	err error
}

func (e *envReader) fail(k, v, want string) {
	if e.err == nil {
		e.err = domain.NewConfigError(k, "expected %s, got %q", want, v)
	}
}

func (e *envReader) lookup(k string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(k))
	return v, v != ""
}

func (e *envReader) str(k, def string) string {
	if v, ok := e.lookup(k); ok {
		return v
	}
	return def
}

func (e *envReader) int(k string, def int) int {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(k, v, "an integer")
		return def
	}
	return i
}

func (e *envReader) float(k string, def float64) float64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(k, v, "a number")
		return def
	}
	return f
}

func (e *envReader) bool(k string, def bool) bool {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(k, v, "a boolean")
		return def
	}
	return b
}

func (e *envReader) duration(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(k, v, "a duration like 500ms or 2m")
		return def
	}
	return d
}
