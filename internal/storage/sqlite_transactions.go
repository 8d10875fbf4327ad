package storage

import (
	"context"

	"paycycle/internal/domain"
)

type sqliteTransactions struct{ s *sqliteStore }

const insertTransactionSQL = `
INSERT INTO transactions (id, owner_id, amount, occurred_at, category_id,
                          payee, method, notes, created_at, updated_at)
VALUES (:id, :owner_id, :amount, :occurred_at, :category_id,
        :payee, :method, :notes, :created_at, :updated_at)`

const updateTransactionSQL = `
UPDATE transactions SET amount = :amount, occurred_at = :occurred_at,
                        category_id = :category_id, payee = :payee,
                        method = :method, notes = :notes,
                        updated_at = :updated_at
WHERE id = :id AND owner_id = :owner_id`

func (t sqliteTransactions) Insert(ctx context.Context, txn *domain.Transaction) error {
	if _, err := t.s.db.NamedExecContext(ctx, insertTransactionSQL, transactionToRow(txn)); err != nil {
		return domain.Transient("transactions.insert", err)
	}
	return nil
}

func (t sqliteTransactions) Update(ctx context.Context, txn *domain.Transaction) error {
	res, err := t.s.db.NamedExecContext(ctx, updateTransactionSQL, transactionToRow(txn))
	if err != nil {
		return domain.Transient("transactions.update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("transaction", txn.ID)
	}
	return nil
}
