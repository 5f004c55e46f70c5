package credits

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

var _ Ledger = (*MemoryLedger)(nil)

// DefaultPrices is the cost of each operation in credits.
var DefaultPrices = map[OpType]int64{
	OpImage:      1,
	OpVideo:      5,
	OpImageBatch: 4,
	OpVideoBatch: 20,
}

type transaction struct {
	userID   string
	amount   int64
	refunded bool
}

// MemoryLedger keeps balances in process memory.
type MemoryLedger struct {
	mu           sync.Mutex
	prices       map[OpType]int64
	balances     map[string]int64
	transactions map[string]*transaction
}

// NewMemoryLedger creates a ledger with the given prices. Nil uses DefaultPrices.
func NewMemoryLedger(prices map[OpType]int64) *MemoryLedger {
	if prices == nil {
		prices = DefaultPrices
	}
	return &MemoryLedger{
		prices:       prices,
		balances:     make(map[string]int64),
		transactions: make(map[string]*transaction),
	}
}

// Grant adds credits to a user.
func (l *MemoryLedger) Grant(userID string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += amount
}

// Balance returns a user's balance.
func (l *MemoryLedger) Balance(userID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

func (l *MemoryLedger) Check(_ context.Context, userID string, op OpType, _ string) (CheckResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	required := l.prices[op]
	balance := l.balances[userID]
	return CheckResult{HasEnough: balance >= required, Required: required, Balance: balance}, nil
}

func (l *MemoryLedger) Deduct(_ context.Context, userID string, op OpType, _ string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	required := l.prices[op]
	balance := l.balances[userID]
	if balance < required {
		return "", &InsufficientCreditsError{Op: op, Required: required, Balance: balance}
	}

	l.balances[userID] = balance - required
	id := uuid.NewString()
	l.transactions[id] = &transaction{userID: userID, amount: required}
	return id, nil
}

// Refund is idempotent per transaction.
func (l *MemoryLedger) Refund(_ context.Context, transactionID, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, ok := l.transactions[transactionID]
	if !ok {
		return ErrUnknownTransaction
	}
	if tx.refunded {
		return nil
	}
	tx.refunded = true
	l.balances[tx.userID] += tx.amount
	return nil
}
