package domain

import "time"

// Transaction is a ledger entry. The scheduler writes one per occurrence at
// confirm/pay time, stamped from the rule template; paying a confirmed
// occurrence updates the already-linked entry instead of adding a second.
type Transaction struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Amount     int64     `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
	CategoryID *string   `json:"category_id,omitempty"`
	Payee      string    `json:"payee"`
	Method     string    `json:"method"`
	Notes      string    `json:"notes"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	cp := *t
	if t.CategoryID != nil {
		v := *t.CategoryID
		cp.CategoryID = &v
	}
	return &cp
}
