// Package txn defines the signed transaction envelope carried through consensus. The caller of
// every ledger operation is the address of the key that signed the envelope.
package txn

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cometbft/cometbft/crypto/ed25519"

	"github.com/ahmadzakiakmal/produce-registry/ledger"
)

type Type string

const (
	TypeSetRole               Type = "set_role"
	TypeCreateBatch           Type = "create_batch"
	TypeUpdateQualityAndPrice Type = "update_quality_and_price"
	TypeTransferBatch         Type = "transfer_batch"
	TypeFinalizeToConsumer    Type = "finalize_to_consumer"
)

// Known reports whether t names an operation
func (t Type) Known() bool {
	switch t {
	case TypeSetRole, TypeCreateBatch, TypeUpdateQualityAndPrice, TypeTransferBatch, TypeFinalizeToConsumer:
		return true
	}
	return false
}

// Tx is the wire form of a transaction. Byte fields travel as base64.
type Tx struct {
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Nonce     uint64          `json:"nonce"`
	PubKey    []byte          `json:"pub_key"`
	Signature []byte          `json:"signature"`
}

type signDoc struct {
	ChainID string          `json:"chain_id"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Nonce   uint64          `json:"nonce"`
}

// SignBytes returns the bytes covered by the signature. The chain id binds a signature to one
// network. Payload whitespace is not significant.
func SignBytes(chainID string, t Type, payload json.RawMessage, nonce uint64) ([]byte, error) {
	doc, err := json.Marshal(signDoc{ChainID: chainID, Type: t, Payload: payload, Nonce: nonce})
	if err != nil {
		return nil, ledger.NewError(ledger.KindEncoding, "sign bytes: %v", err)
	}
	return doc, nil
}

// New builds and signs a transaction
func New(chainID string, key ed25519.PrivKey, nonce uint64, t Type, payload any) (*Tx, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, ledger.NewError(ledger.KindEncoding, "payload: %v", err)
	}
	tx := &Tx{
		Type:    t,
		Payload: raw,
		Nonce:   nonce,
		PubKey:  key.PubKey().Bytes(),
	}
	msg, err := SignBytes(chainID, t, raw, nonce)
	if err != nil {
		return nil, err
	}
	tx.Signature, err = key.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("signing tx: %w", err)
	}
	return tx, nil
}

// Encode returns the bytes submitted to the node
func Encode(tx *Tx) ([]byte, error) {
	raw, err := json.Marshal(tx)
	if err != nil {
		return nil, ledger.NewError(ledger.KindEncoding, "encode tx: %v", err)
	}
	return raw, nil
}

// Decode parses raw and runs ValidateBasic. It does not check the signature.
func Decode(raw []byte) (*Tx, error) {
	var tx Tx
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tx); err != nil {
		return nil, ledger.NewError(ledger.KindEncoding, "decode tx: %v", err)
	}
	if dec.More() {
		return nil, ledger.NewError(ledger.KindEncoding, "decode tx: trailing data")
	}
	if err := tx.ValidateBasic(); err != nil {
		return nil, err
	}
	return &tx, nil
}

// ValidateBasic performs the stateless checks of the envelope.
func (tx *Tx) ValidateBasic() error {
	if !tx.Type.Known() {
		return ledger.NewError(ledger.KindEncoding, "unknown tx type %q", tx.Type)
	}
	if len(tx.Payload) == 0 || bytes.Equal(tx.Payload, []byte("null")) {
		return ledger.NewError(ledger.KindEncoding, "missing payload")
	}
	if tx.Nonce == 0 {
		return ledger.NewError(ledger.KindEncoding, "nonce must start at 1")
	}
	if len(tx.PubKey) != ed25519.PubKeySize {
		return ledger.NewError(ledger.KindEncoding, "pub_key must be %d bytes", ed25519.PubKeySize)
	}
	if len(tx.Signature) != ed25519.SignatureSize {
		return ledger.NewError(ledger.KindEncoding, "signature must be %d bytes", ed25519.SignatureSize)
	}
	return nil
}

// Signer returns the account of the key that signed tx
func (tx *Tx) Signer() (ledger.Account, error) {
	return ledger.AccountFromBytes(ed25519.PubKey(tx.PubKey).Address())
}

// Verify checks the signature for chainID and returns the signing account.
func (tx *Tx) Verify(chainID string) (ledger.Account, error) {
	msg, err := SignBytes(chainID, tx.Type, tx.Payload, tx.Nonce)
	if err != nil {
		return ledger.Account{}, err
	}
	if !ed25519.PubKey(tx.PubKey).VerifySignature(msg, tx.Signature) {
		return ledger.Account{}, ledger.NewError(ledger.KindBadSignature, "signature does not match pub_key")
	}
	return tx.Signer()
}
