package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cometbft/cometbft/crypto/ed25519"

	"github.com/ahmadzakiakmal/produce-registry/client"
	"github.com/ahmadzakiakmal/produce-registry/ledger"
	"github.com/ahmadzakiakmal/produce-registry/txn"
)

type bench struct {
	client  *client.Client
	chainID string

	mu    sync.Mutex
	admin *txn.Signer
}

// party is a producer and a retailer running batches through their lifecycle
type party struct {
	producer *txn.Signer
	retailer *txn.Signer
}

// Step is the latency of one transaction of a workflow
type Step struct {
	Name        string
	Latency     time.Duration
	BlockHeight int64
}

func (b *bench) setupAdmin(ctx context.Context, key ed25519.PrivKey) error {
	signer := txn.NewSigner(b.chainID, key, 0)
	nonce, err := b.client.Nonce(ctx, signer.Account())
	if err != nil {
		return err
	}
	signer.Resync(nonce)
	b.admin = signer
	return nil
}

// newParty generates fresh keys and has the administrator grant their roles
func (b *bench) newParty(ctx context.Context) (*party, error) {
	p := &party{
		producer: txn.NewSigner(b.chainID, ed25519.GenPrivKey(), 0),
		retailer: txn.NewSigner(b.chainID, ed25519.GenPrivKey(), 0),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, grant := range []txn.SetRole{
		{Account: p.producer.Account(), Role: ledger.RoleProducer},
		{Account: p.retailer.Account(), Role: ledger.RoleRetailer},
	} {
		if _, err := b.submit(ctx, b.admin, grant); err != nil {
			return nil, fmt.Errorf("granting %s: %w", grant.Role, err)
		}
	}
	return p, nil
}

// submit signs and relays op, resyncing the signer when the transaction did not consume a nonce
func (b *bench) submit(ctx context.Context, signer *txn.Signer, op txn.Operation) (*txResult, error) {
	raw, err := signer.Sign(op)
	if err != nil {
		return nil, err
	}
	result, err := b.client.SubmitTx(ctx, raw)
	if err != nil || result.Height == 0 {
		if nonce, nerr := b.client.Nonce(ctx, signer.Account()); nerr == nil {
			signer.Resync(nonce)
		}
	}
	if err != nil {
		return nil, err
	}
	if result.Code != 0 {
		return nil, fmt.Errorf("%s rejected with code %d: %s", op.Type(), result.Code, result.Log)
	}
	return &txResult{Height: result.Height, Data: result.Data}, nil
}

type txResult struct {
	Height int64
	Data   json.RawMessage
}

// runWorkflow creates a batch, reprices it, hands it to the retailer and finalizes it
func (b *bench) runWorkflow(ctx context.Context, p *party) ([]Step, error) {
	var steps []Step
	totalStart := time.Now()

	timed := func(name string, signer *txn.Signer, op txn.Operation) (*txResult, error) {
		start := time.Now()
		res, err := b.submit(ctx, signer, op)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		steps = append(steps, Step{name, time.Since(start), res.Height})
		return res, nil
	}

	res, err := timed("Create Batch", p.producer, txn.CreateBatch{CreateBatchParams: ledger.CreateBatchParams{
		MetadataReference: "ipfs://bench",
		OriginFarm:        "Bench Farm",
		CropType:          "tomato",
		HarvestDate:       time.Now().Unix(),
		QualityScore:      80,
		UnitPrice:         1500,
	}})
	if err != nil {
		return steps, err
	}
	var batch ledger.Batch
	if err := json.Unmarshal(res.Data, &batch); err != nil {
		return steps, fmt.Errorf("Create Batch (unmarshal): %w", err)
	}

	if _, err := timed("Update Quality", p.producer, txn.UpdateQualityAndPrice{BatchID: batch.ID, QualityScore: 85, UnitPrice: 1600}); err != nil {
		return steps, err
	}
	if _, err := timed("Transfer Batch", p.producer, txn.TransferBatch{BatchID: batch.ID, To: p.retailer.Account(), Note: "bench handover"}); err != nil {
		return steps, err
	}
	if _, err := timed("Finalize Batch", p.retailer, txn.FinalizeToConsumer{BatchID: batch.ID, Note: "sold"}); err != nil {
		return steps, err
	}

	steps = append(steps, Step{"Complete Workflow", time.Since(totalStart), 0})
	return steps, nil
}
