package txn

import (
	"github.com/ahmadzakiakmal/produce-registry/kv"
	"github.com/ahmadzakiakmal/produce-registry/ledger"
)

// NonceOf returns the last nonce accepted from account, 0 if it never transacted.
func NonceOf(store kv.Store, account ledger.Account) (uint64, error) {
	return ledger.GetUint64(store, ledger.NonceKey(account), 0)
}

// CheckNonce is the mempool check: the nonce must be ahead of committed state. Gaps are allowed
// so a client can queue several transactions before the first one commits.
func CheckNonce(store kv.Store, account ledger.Account, nonce uint64) error {
	last, err := NonceOf(store, account)
	if err != nil {
		return err
	}
	if nonce <= last {
		return ledger.NewError(ledger.KindBadNonce, "nonce %d already used by %s (last %d)", nonce, account, last)
	}
	return nil
}

// ConsumeNonce accepts exactly the next nonce of account and records it.
func ConsumeNonce(store kv.Store, account ledger.Account, nonce uint64) error {
	last, err := NonceOf(store, account)
	if err != nil {
		return err
	}
	if nonce != last+1 {
		return ledger.NewError(ledger.KindBadNonce, "expected nonce %d from %s, got %d", last+1, account, nonce)
	}
	return ledger.SetUint64(store, ledger.NonceKey(account), nonce)
}
