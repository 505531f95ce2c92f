package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/dgraph-io/badger/v4"

	"github.com/ahmadzakiakmal/produce-registry/kv"
	"github.com/ahmadzakiakmal/produce-registry/ledger"
	"github.com/ahmadzakiakmal/produce-registry/txn"
)

const (
	AppName    = "produce-registry"
	AppVersion = 1
	codespace  = "ledger"
)

// Projector receives the changes of every committed block
type Projector interface {
	ProjectBlock(ctx context.Context, changes *ledger.ChangeSet) error
}

// Application implements the ABCI interface for the produce ledger
type Application struct {
	badgerDB  *badger.DB
	projector Projector
	config    *AppConfig
	logger    cmtlog.Logger

	mu      sync.Mutex
	chainID string
	// pending block, set between FinalizeBlock and Commit
	readTxn *badger.Txn
	block   *kv.Cache
	changes *ledger.ChangeSet
}

// AppConfig contains configuration for the ABCI application
type AppConfig struct {
	NodeID    string
	LogAllTxs bool
}

// NewABCIApplication creates the ledger application. projector may be nil.
func NewABCIApplication(badgerDB *badger.DB, config *AppConfig, logger cmtlog.Logger, projector Projector) *Application {
	if config == nil {
		config = &AppConfig{}
	}
	return &Application{
		badgerDB:  badgerDB,
		projector: projector,
		config:    config,
		logger:    logger,
	}
}

// ChainID returns the chain id transactions are signed for
func (app *Application) ChainID() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.chainID
}

// Info implements the ABCI Info method
func (app *Application) Info(_ context.Context, _ *abcitypes.InfoRequest) (*abcitypes.InfoResponse, error) {
	var (
		height  int64
		appHash []byte
		chainID string
	)
	err := app.badgerDB.View(func(btxn *badger.Txn) error {
		store := kv.NewBadgerStore(btxn)

		h, err := ledger.GetUint64(store, ledger.KeyLastHeight, 0)
		if err != nil {
			return err
		}
		height = int64(h)

		appHash, err = getOptional(store, ledger.KeyLastAppHash)
		if err != nil {
			return err
		}
		raw, err := getOptional(store, ledger.KeyChainID)
		chainID = string(raw)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading last block info: %w", err)
	}

	app.mu.Lock()
	if chainID != "" {
		app.chainID = chainID
	}
	app.mu.Unlock()

	return &abcitypes.InfoResponse{
		Data:             AppName,
		AppVersion:       AppVersion,
		LastBlockHeight:  height,
		LastBlockAppHash: appHash,
	}, nil
}

// InitChain bootstraps the genesis administrator and the transition policy
func (app *Application) InitChain(_ context.Context, req *abcitypes.InitChainRequest) (*abcitypes.InitChainResponse, error) {
	genesis, err := ParseGenesisState(req.AppStateBytes)
	if err != nil {
		return nil, err
	}

	err = app.badgerDB.Update(func(btxn *badger.Txn) error {
		staged := kv.NewCache(kv.NewBadgerStore(btxn))
		if err := genesis.Apply(staged, req.ChainId); err != nil {
			return err
		}
		return staged.Write()
	})
	if err != nil {
		return nil, fmt.Errorf("writing genesis state: %w", err)
	}

	app.mu.Lock()
	app.chainID = req.ChainId
	app.mu.Unlock()

	app.logger.Info("Ledger initialized", "chain_id", req.ChainId, "administrator", genesis.Administrator)
	return &abcitypes.InitChainResponse{}, nil
}

// CheckTx admits transactions that decode, carry a valid signature and a fresh nonce. Ledger
// rules are only evaluated in FinalizeBlock.
func (app *Application) CheckTx(_ context.Context, check *abcitypes.CheckTxRequest) (*abcitypes.CheckTxResponse, error) {
	chainID := app.ChainID()

	tx, err := txn.Decode(check.Tx)
	if err == nil {
		_, err = tx.Operation()
	}
	var signer ledger.Account
	if err == nil {
		signer, err = tx.Verify(chainID)
	}
	if err == nil {
		err = app.badgerDB.View(func(btxn *badger.Txn) error {
			return txn.CheckNonce(kv.NewBadgerStore(btxn), signer, tx.Nonce)
		})
	}
	if err != nil {
		if app.config.LogAllTxs {
			app.logger.Debug("Rejected transaction", "error", err)
		}
		return &abcitypes.CheckTxResponse{
			Code:      ledger.KindOf(err).Code(),
			Log:       err.Error(),
			Codespace: codespace,
		}, nil
	}
	return &abcitypes.CheckTxResponse{Code: abcitypes.CodeTypeOK}, nil
}

// PrepareProposal drops transactions that cannot be decoded and keeps the block within MaxTxBytes
func (app *Application) PrepareProposal(_ context.Context, proposal *abcitypes.PrepareProposalRequest) (*abcitypes.PrepareProposalResponse, error) {
	txs := make([][]byte, 0, len(proposal.Txs))
	var size int64
	for _, raw := range proposal.Txs {
		if _, err := txn.Decode(raw); err != nil {
			app.logger.Debug("Dropping undecodable transaction from proposal", "error", err)
			continue
		}
		size += int64(len(raw))
		if proposal.MaxTxBytes > 0 && size > proposal.MaxTxBytes {
			break
		}
		txs = append(txs, raw)
	}
	return &abcitypes.PrepareProposalResponse{Txs: txs}, nil
}

// ProcessProposal implements the ABCI ProcessProposal method
func (app *Application) ProcessProposal(_ context.Context, proposal *abcitypes.ProcessProposalRequest) (*abcitypes.ProcessProposalResponse, error) {
	for i, raw := range proposal.Txs {
		if _, err := txn.Decode(raw); err != nil {
			app.logger.Error("Invalid transaction in proposal", "index", i, "height", proposal.Height, "error", err)
			return &abcitypes.ProcessProposalResponse{
				Status: abcitypes.PROCESS_PROPOSAL_STATUS_REJECT,
			}, nil
		}
	}
	return &abcitypes.ProcessProposalResponse{
		Status: abcitypes.PROCESS_PROPOSAL_STATUS_ACCEPT,
	}, nil
}

// FinalizeBlock executes the block's transactions in order against a staged copy of state.
// Nothing reaches badger before Commit.
func (app *Application) FinalizeBlock(_ context.Context, req *abcitypes.FinalizeBlockRequest) (*abcitypes.FinalizeBlockResponse, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	app.discardPending()
	app.readTxn = app.badgerDB.NewTransaction(false)
	app.block = kv.NewCache(kv.NewBadgerStore(app.readTxn))
	app.changes = ledger.NewChangeSet(req.Height, req.Time)

	txResults := make([]*abcitypes.ExecTxResult, len(req.Txs))
	for i, raw := range req.Txs {
		txResults[i] = app.deliverTx(raw, req.Time.Unix())
		if app.config.LogAllTxs {
			app.logger.Info("Executed transaction", "height", req.Height, "index", i, "code", txResults[i].Code, "log", txResults[i].Log)
		}
	}

	prevHash, err := getOptional(app.block, ledger.KeyLastAppHash)
	if err != nil {
		return nil, fmt.Errorf("reading previous app hash: %w", err)
	}
	if err := ledger.SetUint64(app.block, ledger.KeyLastHeight, uint64(req.Height)); err != nil {
		return nil, err
	}
	appHash, err := calculateAppHash(prevHash, req.Height, app.block)
	if err != nil {
		return nil, err
	}
	if err := app.block.Set(ledger.KeyLastAppHash, appHash); err != nil {
		return nil, err
	}

	app.changes.AppHash = appHash
	app.changes.TxCount = len(req.Txs)

	return &abcitypes.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   appHash,
	}, nil
}

// Commit persists the block staged by FinalizeBlock and hands its changes to the projector.
// Changes the projector rejects stay queued in badger and are retried on the next commit.
// A failed write is returned to CometBFT, which halts the node rather than diverge.
func (app *Application) Commit(ctx context.Context, _ *abcitypes.CommitRequest) (*abcitypes.CommitResponse, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.block == nil {
		return &abcitypes.CommitResponse{}, nil
	}
	block, changes := app.block, app.changes
	app.discardPending()

	if app.projector != nil {
		if err := queueProjection(block, changes); err != nil {
			return nil, err
		}
	}
	if err := kv.Commit(app.badgerDB, block); err != nil {
		return nil, fmt.Errorf("committing block %d: %w", changes.Height, err)
	}

	if app.projector != nil {
		app.projectPending(ctx)
	}
	return &abcitypes.CommitResponse{}, nil
}

func (app *Application) discardPending() {
	if app.readTxn != nil {
		app.readTxn.Discard()
	}
	app.readTxn = nil
	app.block = nil
	app.changes = nil
}

// Placeholder implementations for other ABCI methods
func (app *Application) ListSnapshots(_ context.Context, _ *abcitypes.ListSnapshotsRequest) (*abcitypes.ListSnapshotsResponse, error) {
	return &abcitypes.ListSnapshotsResponse{}, nil
}

func (app *Application) OfferSnapshot(_ context.Context, _ *abcitypes.OfferSnapshotRequest) (*abcitypes.OfferSnapshotResponse, error) {
	return &abcitypes.OfferSnapshotResponse{}, nil
}

func (app *Application) LoadSnapshotChunk(_ context.Context, _ *abcitypes.LoadSnapshotChunkRequest) (*abcitypes.LoadSnapshotChunkResponse, error) {
	return &abcitypes.LoadSnapshotChunkResponse{}, nil
}

func (app *Application) ApplySnapshotChunk(_ context.Context, _ *abcitypes.ApplySnapshotChunkRequest) (*abcitypes.ApplySnapshotChunkResponse, error) {
	return &abcitypes.ApplySnapshotChunkResponse{
		Result: abcitypes.APPLY_SNAPSHOT_CHUNK_RESULT_ACCEPT,
	}, nil
}

func (app *Application) ExtendVote(_ context.Context, _ *abcitypes.ExtendVoteRequest) (*abcitypes.ExtendVoteResponse, error) {
	return &abcitypes.ExtendVoteResponse{}, nil
}

func (app *Application) VerifyVoteExtension(_ context.Context, _ *abcitypes.VerifyVoteExtensionRequest) (*abcitypes.VerifyVoteExtensionResponse, error) {
	return &abcitypes.VerifyVoteExtensionResponse{
		Status: abcitypes.VERIFY_VOTE_EXTENSION_STATUS_ACCEPT,
	}, nil
}

// getOptional returns nil for a missing key
func getOptional(store kv.Store, key []byte) ([]byte, error) {
	raw, err := store.Get(key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	return raw, err
}

func mustJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("encoding %T: %v", v, err))
	}
	return raw
}
