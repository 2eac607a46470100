package ledger

import (
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"glyph/internal/glypherr"
)

// Account holds a user's current balance in integer mGLYPH.
type Account struct {
	Balance int64 `json:"balance"`
}

// LogEntry is one append-only transaction-log row for an account.
type LogEntry struct {
	Delta int64  `json:"delta"`
	Kind  string `json:"kind"` // "credit" | "debit"
	Memo  string `json:"memo"`
	RefID string `json:"ref_id"`
	TS    int64  `json:"ts"`
}

const (
	KindCredit = "credit"
	KindDebit  = "debit"
)

// Ensure creates a zero-balance account for user if it does not exist yet.
func (l *Ledger) Ensure(user string) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		if b.Get([]byte(user)) != nil {
			return nil
		}
		raw, _ := json.Marshal(Account{Balance: 0})
		return b.Put([]byte(user), raw)
	})
}

func (l *Ledger) getAccount(tx *bolt.Tx, user string) (Account, error) {
	raw := tx.Bucket(bucketAccounts).Get([]byte(user))
	if raw == nil {
		return Account{Balance: 0}, nil
	}
	var a Account
	if err := json.Unmarshal(raw, &a); err != nil {
		return Account{}, err
	}
	return a, nil
}

func (l *Ledger) appendLog(tx *bolt.Tx, user string, entry LogEntry) error {
	b := tx.Bucket(bucketAccountLog)
	seq, err := b.NextSequence()
	if err != nil {
		return err
	}
	key := make([]byte, len(user)+1+8)
	copy(key, user)
	key[len(user)] = '/'
	binary.BigEndian.PutUint64(key[len(user)+1:], seq)
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return b.Put(key, raw)
}

// Credit adds amount (>= 0) to user's balance and appends a log row.
func (l *Ledger) Credit(user string, amount int64, memo, ref string) error {
	if amount < 0 {
		panic("ledger: credit amount must be >= 0")
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		acct, err := l.getAccount(tx, user)
		if err != nil {
			return err
		}
		acct.Balance += amount
		raw, err := json.Marshal(acct)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketAccounts).Put([]byte(user), raw); err != nil {
			return err
		}
		return l.appendLog(tx, user, LogEntry{
			Delta: amount, Kind: KindCredit, Memo: memo, RefID: ref, TS: time.Now().Unix(),
		})
	})
}

// Debit subtracts amount (>= 0) from user's balance and appends a log row.
// Returns glypherr.ErrInsufficientBalance if the balance would go negative;
// in that case no mutation occurs.
func (l *Ledger) Debit(user string, amount int64, memo, ref string) error {
	if amount < 0 {
		panic("ledger: debit amount must be >= 0")
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		acct, err := l.getAccount(tx, user)
		if err != nil {
			return err
		}
		if acct.Balance < amount {
			return glypherr.ErrInsufficientBalance
		}
		acct.Balance -= amount
		raw, err := json.Marshal(acct)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketAccounts).Put([]byte(user), raw); err != nil {
			return err
		}
		return l.appendLog(tx, user, LogEntry{
			Delta: -amount, Kind: KindDebit, Memo: memo, RefID: ref, TS: time.Now().Unix(),
		})
	})
}

// Balance returns the current balance for user (0 if the account has never
// been touched).
func (l *Ledger) Balance(user string) (int64, error) {
	var bal int64
	err := l.db.View(func(tx *bolt.Tx) error {
		acct, err := l.getAccount(tx, user)
		if err != nil {
			return err
		}
		bal = acct.Balance
		return nil
	})
	return bal, err
}

// TransactionLog returns every log entry recorded for user, oldest first.
func (l *Ledger) TransactionLog(user string) ([]LogEntry, error) {
	var entries []LogEntry
	prefix := []byte(user + "/")
	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAccountLog).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var e LogEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
