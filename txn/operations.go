package txn

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/ahmadzakiakmal/produce-registry/ledger"
)

// Operation is the decoded payload of a transaction.
type Operation interface {
	Type() Type
}

type SetRole struct {
	Account ledger.Account `json:"account"`
	Role    ledger.Role    `json:"role"`
}

type CreateBatch struct {
	ledger.CreateBatchParams
}

type UpdateQualityAndPrice struct {
	BatchID      uint64 `json:"batch_id"`
	QualityScore uint64 `json:"quality_score"`
	UnitPrice    uint64 `json:"unit_price"`
}

type TransferBatch struct {
	BatchID uint64         `json:"batch_id"`
	To      ledger.Account `json:"to"`
	Note    string         `json:"note"`
}

type FinalizeToConsumer struct {
	BatchID uint64 `json:"batch_id"`
	Note    string `json:"note"`
}

func (SetRole) Type() Type               { return TypeSetRole }
func (CreateBatch) Type() Type           { return TypeCreateBatch }
func (UpdateQualityAndPrice) Type() Type { return TypeUpdateQualityAndPrice }
func (TransferBatch) Type() Type         { return TypeTransferBatch }
func (FinalizeToConsumer) Type() Type    { return TypeFinalizeToConsumer }

// Operation decodes the payload into the struct matching tx.Type. Unknown payload fields are
// rejected.
func (tx *Tx) Operation() (Operation, error) {
	var op Operation
	switch tx.Type {
	case TypeSetRole:
		op = &SetRole{}
	case TypeCreateBatch:
		op = &CreateBatch{}
	case TypeUpdateQualityAndPrice:
		op = &UpdateQualityAndPrice{}
	case TypeTransferBatch:
		op = &TransferBatch{}
	case TypeFinalizeToConsumer:
		op = &FinalizeToConsumer{}
	default:
		return nil, ledger.NewError(ledger.KindEncoding, "unknown tx type %q", tx.Type)
	}

	dec := json.NewDecoder(bytes.NewReader(tx.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(op); err != nil {
		// A well-formed payload holding an invalid value, e.g. an unknown role, keeps its kind.
		var lerr *ledger.Error
		if errors.As(err, &lerr) {
			return nil, lerr
		}
		return nil, ledger.NewError(ledger.KindEncoding, "%s payload: %v", tx.Type, err)
	}
	return op, nil
}
