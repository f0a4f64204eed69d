// Package application contém o caso de uso do rate limit: a decisão allow/deny
// de uma chamada sobre um Ledger.
//
// Ele depende apenas do pacote domain e não conhece net/http nem Redis.
// Ex.: Service.Check(ctx, identity, resource) retorna uma Decision.
package application
