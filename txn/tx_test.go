package txn

import (
	"encoding/json"
	"testing"

	"github.com/cometbft/cometbft/crypto/ed25519"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmadzakiakmal/produce-registry/kv"
	"github.com/ahmadzakiakmal/produce-registry/ledger"
)

const chainID = "produce-test"

func TestSignAndVerify(t *testing.T) {
	key := ed25519.GenPrivKey()
	signer := NewSigner(chainID, key, 0)

	raw, err := signer.Sign(TransferBatch{BatchID: 4, To: ledger.Account{1}, Note: "by rail"})
	require.NoError(t, err)

	tx, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeTransferBatch, tx.Type)
	assert.Equal(t, uint64(1), tx.Nonce)

	account, err := tx.Verify(chainID)
	require.NoError(t, err)
	assert.Equal(t, signer.Account(), account)
	assert.Equal(t, []byte(key.PubKey().Address()), account[:])

	op, err := tx.Operation()
	require.NoError(t, err)
	transfer, ok := op.(*TransferBatch)
	require.True(t, ok)
	assert.Equal(t, uint64(4), transfer.BatchID)
	assert.Equal(t, ledger.Account{1}, transfer.To)
	assert.Equal(t, "by rail", transfer.Note)

	next, err := signer.Sign(FinalizeToConsumer{BatchID: 4})
	require.NoError(t, err)
	tx, err = Decode(next)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), tx.Nonce)

	signer.Resync(9)
	resynced, err := signer.Sign(FinalizeToConsumer{BatchID: 4})
	require.NoError(t, err)
	tx, err = Decode(resynced)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), tx.Nonce)
}

func TestVerifyRejectsTampering(t *testing.T) {
	key := ed25519.GenPrivKey()
	tx, err := New(chainID, key, 1, TypeUpdateQualityAndPrice, UpdateQualityAndPrice{BatchID: 1, QualityScore: 50, UnitPrice: 10})
	require.NoError(t, err)

	t.Run("other chain", func(t *testing.T) {
		_, err := tx.Verify("another-chain")
		assert.ErrorIs(t, err, ledger.ErrBadSignature)
	})

	t.Run("edited payload", func(t *testing.T) {
		forged := *tx
		forged.Payload = json.RawMessage(`{"batch_id":1,"quality_score":99,"unit_price":10}`)
		_, err := forged.Verify(chainID)
		assert.ErrorIs(t, err, ledger.ErrBadSignature)
	})

	t.Run("edited nonce", func(t *testing.T) {
		forged := *tx
		forged.Nonce = 2
		_, err := forged.Verify(chainID)
		assert.ErrorIs(t, err, ledger.ErrBadSignature)
	})

	t.Run("other key", func(t *testing.T) {
		forged := *tx
		forged.PubKey = ed25519.GenPrivKey().PubKey().Bytes()
		_, err := forged.Verify(chainID)
		assert.ErrorIs(t, err, ledger.ErrBadSignature)
	})

	t.Run("payload whitespace", func(t *testing.T) {
		spaced := *tx
		spaced.Payload = json.RawMessage(`{ "batch_id": 1, "quality_score": 50, "unit_price": 10 }`)
		_, err := spaced.Verify(chainID)
		assert.NoError(t, err)
	})
}

func TestDecodeRejectsMalformed(t *testing.T) {
	key := ed25519.GenPrivKey()
	valid, err := New(chainID, key, 1, TypeCreateBatch, CreateBatch{})
	require.NoError(t, err)

	encode := func(mutate func(tx *Tx)) []byte {
		tx := *valid
		mutate(&tx)
		raw, err := Encode(&tx)
		require.NoError(t, err)
		return raw
	}

	tests := map[string][]byte{
		"not json":        []byte("hello"),
		"trailing data":   append(encode(func(*Tx) {}), []byte(`{}`)...),
		"unknown field":   []byte(`{"type":"create_batch","extra":1}`),
		"unknown type":    encode(func(tx *Tx) { tx.Type = "burn_batch" }),
		"zero nonce":      encode(func(tx *Tx) { tx.Nonce = 0 }),
		"null payload":    encode(func(tx *Tx) { tx.Payload = json.RawMessage("null") }),
		"short key":       encode(func(tx *Tx) { tx.PubKey = tx.PubKey[:10] }),
		"short signature": encode(func(tx *Tx) { tx.Signature = nil }),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(raw)
			assert.ErrorIs(t, err, ledger.ErrEncoding)
		})
	}
}

func TestOperationRejectsUnknownPayloadFields(t *testing.T) {
	tx := &Tx{Type: TypeSetRole, Payload: json.RawMessage(`{"account":"0101010101010101010101010101010101010101","role":"retailer","admin":true}`)}
	_, err := tx.Operation()
	assert.ErrorIs(t, err, ledger.ErrEncoding)

	tx.Payload = json.RawMessage(`{"account":"0101010101010101010101010101010101010101","role":"retailer"}`)
	op, err := tx.Operation()
	require.NoError(t, err)
	assert.Equal(t, &SetRole{Account: ledger.Account{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, Role: ledger.RoleRetailer}, op)
}

func TestOperationKeepsInvalidRoleKind(t *testing.T) {
	for _, role := range []string{`9`, `"superuser"`} {
		t.Run(role, func(t *testing.T) {
			tx := &Tx{Type: TypeSetRole, Payload: json.RawMessage(`{"account":"0101010101010101010101010101010101010101","role":` + role + `}`)}
			_, err := tx.Operation()
			assert.ErrorIs(t, err, ledger.ErrInvalidArgument)
			assert.Equal(t, ledger.KindInvalidArgument, ledger.KindOf(err))
		})
	}

	tx := &Tx{Type: TypeSetRole, Payload: json.RawMessage(`{"account":"0101","role":"retailer"`)}
	_, err := tx.Operation()
	assert.ErrorIs(t, err, ledger.ErrEncoding)
}

func TestCreateBatchPayloadIsFlat(t *testing.T) {
	raw, err := json.Marshal(CreateBatch{ledger.CreateBatchParams{CropType: "maize", QualityScore: 3}})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"crop_type":"maize"`)
	assert.NotContains(t, string(raw), "CreateBatchParams")
}

func TestNonces(t *testing.T) {
	store := kv.NewMemStore()
	a := ledger.Account{7}

	n, err := NonceOf(store, a)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.NoError(t, CheckNonce(store, a, 3))
	assert.ErrorIs(t, ConsumeNonce(store, a, 2), ledger.ErrBadNonce)
	require.NoError(t, ConsumeNonce(store, a, 1))
	assert.ErrorIs(t, ConsumeNonce(store, a, 1), ledger.ErrBadNonce)
	assert.ErrorIs(t, CheckNonce(store, a, 1), ledger.ErrBadNonce)
	require.NoError(t, ConsumeNonce(store, a, 2))

	n, err = NonceOf(store, a)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}
