package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

// DefaultResource é o recurso usado quando o chamador não distingue endpoints.
const DefaultResource = "default"

// Key particiona todo o estado do ledger.
type Key struct {
	Identity string
	Resource string
}

func (k Key) String() string { return k.Identity + ":" + k.Resource }

// Clock fornece o instante "agora" do processo que faz a verificação.
type Clock func() time.Time

// Seconds converte um instante para segundos (fracionários) desde a epoch,
// a unidade dos registros no ledger.
func Seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Outcome classifica uma decisão.
type Outcome string

const (
	OutcomeAllowed  Outcome = "allowed"
	OutcomeDenied   Outcome = "denied"
	OutcomeFailOpen Outcome = "fail_open"
)

type Decision struct {
	Allowed bool
	Outcome Outcome
	Key     Key

	// Count inclui a própria chamada que disparou a verificação.
	// Zero quando a decisão foi fail-open.
	Count int64
	Rate  float64

	// Message só é preenchida quando a chamada é negada.
	Message string
}

// StoreMode seleciona a variante do ledger.
type StoreMode string

const (
	StoreLocal  StoreMode = "local"
	StoreShared StoreMode = "shared"
)
