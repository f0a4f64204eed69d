package domain

import "context"

// Ledger guarda, por Key, os timestamps das chamadas admitidas para verificação.
//
// Timestamps são segundos desde a epoch e chegam em ordem não decrescente
// por chave quando o acesso é serializado (ver KeyLocker).
type Ledger interface {
	// Prune remove os registros com timestamp estritamente menor que cutoff.
	// Um registro exatamente em cutoff fica: após um intervalo igual à janela
	// a chave ainda não zerou, só depois de um intervalo maior.
	Prune(ctx context.Context, key Key, cutoff float64) error
	// RecordCall acrescenta um registro.
	RecordCall(ctx context.Context, key Key, ts float64) error
	// CountActive devolve quantos registros restam para a chave.
	CountActive(ctx context.Context, key Key) (int64, error)
}

// KeyLocker é uma capacidade opcional do Ledger: quando presente, a sequência
// prune/record/count de uma verificação roda com a chave travada.
//
// O ledger compartilhado não implementa: a corrida entre processos é aceita.
type KeyLocker interface {
	LockKey(key Key) (unlock func())
}
