// Package domain define contratos e tipos de domínio do rate limit por janela deslizante.
//
// Este pacote não depende de net/http, Redis nem de implementações concretas.
// O Ledger (registro de chamadas por identidade+recurso) é o contrato central:
// as variantes local e compartilhada ficam no pacote infra.
package domain
