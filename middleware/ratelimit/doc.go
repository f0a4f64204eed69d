// Package ratelimit fornece o adapter HTTP (net/http) do rate limit por janela deslizante.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (Ledger, Decision, erros) sem net/http
//   - application: a decisão allow/deny (Service.Check) sem net/http
//   - infra: ledgers local (memória) e compartilhado (Redis), stats
//   - ratelimit (este pacote): middleware HTTP + extração de identidade/recurso + tradução para status/headers
//
// Fluxo no gateway:
//
//   1) Extrai a identidade do cliente (header/X-Forwarded-Host/XFF/IP) e o recurso
//   2) Chama a camada application para obter a decisão
//   3) Se negado, responde 429 com a mensagem configurada e Retry-After
//   4) Se permitido (ou se o store caiu: fail-open), chama o próximo handler
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como RATE_PER_SECOND, RATE_WINDOW_SIZE, RATE_STORE_MODE e RATE_STORE_ADDR.
package ratelimit
