// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - LocalLedger: registros por chave em memória (deque ordenada + lock por chave)
//   - RedisLedger: registros por chave num SET do Redis, compartilhado entre processos
//   - OpenLedger: escolhe a variante pelo store_mode
//   - stats: memória, Redis e Prometheus
package infra
