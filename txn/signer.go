package txn

import (
	"github.com/cometbft/cometbft/crypto/ed25519"

	"github.com/ahmadzakiakmal/produce-registry/ledger"
)

// Signer signs consecutive transactions for one key.
type Signer struct {
	chainID string
	key     ed25519.PrivKey
	nonce   uint64
}

// NewSigner returns a signer whose next transaction carries lastNonce+1.
func NewSigner(chainID string, key ed25519.PrivKey, lastNonce uint64) *Signer {
	return &Signer{chainID: chainID, key: key, nonce: lastNonce}
}

func (s *Signer) Account() ledger.Account {
	a, _ := ledger.AccountFromBytes(s.key.PubKey().Address())
	return a
}

// Sign encodes op as the next transaction of this signer
func (s *Signer) Sign(op Operation) ([]byte, error) {
	tx, err := New(s.chainID, s.key, s.nonce+1, op.Type(), op)
	if err != nil {
		return nil, err
	}
	raw, err := Encode(tx)
	if err != nil {
		return nil, err
	}
	s.nonce++
	return raw, nil
}

// Resync makes the next transaction carry lastNonce+1, e.g. after a transaction was dropped
// before reaching a block.
func (s *Signer) Resync(lastNonce uint64) {
	s.nonce = lastNonce
}
