package ledger

import (
	"math"

	"github.com/ahmadzakiakmal/produce-registry/kv"
)

// MaxTextLength bounds every free-text field a caller can write into state.
const MaxTextLength = 4096

// Batch is one tracked lot of produce.
type Batch struct {
	ID                uint64  `json:"id"`
	MetadataReference string  `json:"metadata_reference"`
	OriginFarm        string  `json:"origin_farm"`
	CropType          string  `json:"crop_type"`
	HarvestDate       int64   `json:"harvest_date"`
	QualityScore      uint64  `json:"quality_score"`
	UnitPrice         uint64  `json:"unit_price"`
	CurrentOwner      Account `json:"current_owner"`
	CurrentOwnerRole  Role    `json:"current_owner_role"`
	Finalized         bool    `json:"finalized"`
}

// CreateBatchParams are the caller supplied fields of a new batch.
type CreateBatchParams struct {
	MetadataReference string `json:"metadata_reference"`
	OriginFarm        string `json:"origin_farm"`
	CropType          string `json:"crop_type"`
	HarvestDate       int64  `json:"harvest_date"`
	QualityScore      uint64 `json:"quality_score"`
	UnitPrice         uint64 `json:"unit_price"`
}

func (p CreateBatchParams) validate() error {
	fields := map[string]string{
		"metadata_reference": p.MetadataReference,
		"origin_farm":        p.OriginFarm,
		"crop_type":          p.CropType,
	}
	for name, value := range fields {
		if len(value) > MaxTextLength {
			return errorf(KindInvalidArgument, "%s exceeds %d bytes", name, MaxTextLength)
		}
	}
	if p.HarvestDate < 0 {
		return errorf(KindInvalidArgument, "harvest_date must not be negative")
	}
	return nil
}

// IndexedRecord is a history record together with its position in the batch log.
type IndexedRecord struct {
	BatchID uint64 `json:"batch_id"`
	Index   uint64 `json:"index"`
	HistoryRecord
}

// Transition is the outcome of an accepted batch operation.
type Transition struct {
	Batch Batch
	// Record is nil for operations that do not touch custody.
	Record *IndexedRecord
}

// BatchLedger owns batch records and their lifecycle. Every operation stages its writes and
// only hands them to the underlying store once all of its checks have passed; a rejected
// operation leaves the store untouched.
type BatchLedger struct {
	store     kv.Store
	blockTime int64
}

// NewBatchLedger creates a ledger over store. blockTime is the chain-observed time, in unix
// seconds, stamped on history records appended by this ledger.
func NewBatchLedger(store kv.Store, blockTime int64) *BatchLedger {
	return &BatchLedger{store: store, blockTime: blockTime}
}

// CreateBatch allocates the next batch id with caller as owner and seeds its history.
func (l *BatchLedger) CreateBatch(caller Account, p CreateBatchParams) (*Transition, error) {
	return l.atomically(func(s *BatchLedger) (*Transition, error) {
		role, err := NewRoleRegistry(s.store).RoleOf(caller)
		if err != nil {
			return nil, err
		}
		policy, err := LoadPolicy(s.store)
		if err != nil {
			return nil, err
		}
		if !policy.canCreate(role) {
			return nil, errorf(KindUnauthorized, "%s holds role %s which may not create batches", caller, role)
		}
		if err := p.validate(); err != nil {
			return nil, err
		}

		id, err := GetUint64(s.store, keyNextBatchID, 1)
		if err != nil {
			return nil, err
		}
		if id == math.MaxUint64 {
			return nil, errorf(KindInvalidArgument, "batch id space exhausted")
		}
		if err := SetUint64(s.store, keyNextBatchID, id+1); err != nil {
			return nil, err
		}

		batch := Batch{
			ID:                id,
			MetadataReference: p.MetadataReference,
			OriginFarm:        p.OriginFarm,
			CropType:          p.CropType,
			HarvestDate:       p.HarvestDate,
			QualityScore:      p.QualityScore,
			UnitPrice:         p.UnitPrice,
			CurrentOwner:      caller,
			CurrentOwnerRole:  role,
		}
		if err := s.saveBatch(&batch); err != nil {
			return nil, err
		}
		return s.appendRecord(batch, HistoryRecord{
			From:   ZeroAccount,
			To:     caller,
			ToRole: role,
		})
	})
}

// UpdateQualityAndPrice overwrites the mutable commercial fields of an active batch. It does not
// append history.
func (l *BatchLedger) UpdateQualityAndPrice(caller Account, id, quality, price uint64) (*Transition, error) {
	return l.atomically(func(s *BatchLedger) (*Transition, error) {
		batch, err := s.ownedActiveBatch(caller, id)
		if err != nil {
			return nil, err
		}
		batch.QualityScore = quality
		batch.UnitPrice = price
		if err := s.saveBatch(batch); err != nil {
			return nil, err
		}
		return &Transition{Batch: *batch}, nil
	})
}

// TransferBatch hands custody of an active batch to another account.
func (l *BatchLedger) TransferBatch(caller Account, id uint64, to Account, note string) (*Transition, error) {
	return l.atomically(func(s *BatchLedger) (*Transition, error) {
		batch, err := s.ownedActiveBatch(caller, id)
		if err != nil {
			return nil, err
		}
		if to == caller {
			return nil, errorf(KindInvalidArgument, "cannot transfer batch %d to its current owner", id)
		}
		if to.IsZero() {
			return nil, errorf(KindInvalidArgument, "cannot transfer batch %d to the zero account", id)
		}
		if len(note) > MaxTextLength {
			return nil, errorf(KindInvalidArgument, "note exceeds %d bytes", MaxTextLength)
		}

		toRole, err := NewRoleRegistry(s.store).RoleOf(to)
		if err != nil {
			return nil, err
		}
		policy, err := LoadPolicy(s.store)
		if err != nil {
			return nil, err
		}
		if !policy.canReceive(toRole) {
			return nil, errorf(KindUnauthorized, "recipient %s holds role %s which may not receive batches", to, toRole)
		}

		batch.CurrentOwner = to
		batch.CurrentOwnerRole = toRole
		if err := s.saveBatch(batch); err != nil {
			return nil, err
		}
		return s.appendRecord(*batch, HistoryRecord{
			From:   caller,
			To:     to,
			ToRole: toRole,
			Note:   note,
		})
	})
}

// FinalizeToConsumer marks the batch as delivered to its end consumer. The batch is frozen
// afterwards. The terminal record names the finalizing owner on both ends.
func (l *BatchLedger) FinalizeToConsumer(caller Account, id uint64, note string) (*Transition, error) {
	return l.atomically(func(s *BatchLedger) (*Transition, error) {
		batch, err := s.ownedActiveBatch(caller, id)
		if err != nil {
			return nil, err
		}
		if len(note) > MaxTextLength {
			return nil, errorf(KindInvalidArgument, "note exceeds %d bytes", MaxTextLength)
		}

		role, err := NewRoleRegistry(s.store).RoleOf(caller)
		if err != nil {
			return nil, err
		}
		policy, err := LoadPolicy(s.store)
		if err != nil {
			return nil, err
		}
		if !policy.canFinalize(role) {
			return nil, errorf(KindUnauthorized, "%s holds role %s which may not finalize batches", caller, role)
		}

		batch.Finalized = true
		if err := s.saveBatch(batch); err != nil {
			return nil, err
		}
		return s.appendRecord(*batch, HistoryRecord{
			From:   caller,
			To:     caller,
			ToRole: role,
			Note:   note,
		})
	})
}

// atomically runs fn against a staging cache and writes the cache through only on success.
func (l *BatchLedger) atomically(fn func(staged *BatchLedger) (*Transition, error)) (*Transition, error) {
	cache := kv.NewCache(l.store)
	t, err := fn(&BatchLedger{store: cache, blockTime: l.blockTime})
	if err != nil {
		return nil, err
	}
	if err := cache.Write(); err != nil {
		return nil, internal(err)
	}
	return t, nil
}

func (l *BatchLedger) ownedActiveBatch(caller Account, id uint64) (*Batch, error) {
	batch, err := loadBatch(l.store, id)
	if err != nil {
		return nil, err
	}
	if batch.Finalized {
		return nil, errorf(KindAlreadyFinalized, "batch %d is finalized", id)
	}
	if batch.CurrentOwner != caller {
		return nil, errorf(KindUnauthorized, "%s is not the current owner of batch %d", caller, id)
	}
	return batch, nil
}

// appendRecord stamps rec with the block time, never earlier than the batch's newest record.
func (l *BatchLedger) appendRecord(batch Batch, rec HistoryRecord) (*Transition, error) {
	history := NewHistoryLog(l.store)
	last, err := history.lastTimestamp(batch.ID)
	if err != nil {
		return nil, err
	}
	rec.Timestamp = max(l.blockTime, last)

	index, err := history.Append(batch.ID, rec)
	if err != nil {
		return nil, err
	}
	return &Transition{
		Batch:  batch,
		Record: &IndexedRecord{BatchID: batch.ID, Index: index, HistoryRecord: rec},
	}, nil
}

func (l *BatchLedger) saveBatch(b *Batch) error {
	return setJSON(l.store, batchKey(b.ID), b)
}

func loadBatch(store kv.Store, id uint64) (*Batch, error) {
	var b Batch
	found, err := getJSON(store, batchKey(id), &b)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errorf(KindNotFound, "batch %d does not exist", id)
	}
	return &b, nil
}
