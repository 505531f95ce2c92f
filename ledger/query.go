package ledger

import "github.com/ahmadzakiakmal/produce-registry/kv"

// QueryFacade serves read-only projections of ledger state. Provenance is public, so none of
// its methods take a caller.
type QueryFacade struct {
	store   kv.Store
	roles   *RoleRegistry
	history *HistoryLog
}

// NewQueryFacade creates a facade over store
func NewQueryFacade(store kv.Store) *QueryFacade {
	return &QueryFacade{
		store:   store,
		roles:   NewRoleRegistry(store),
		history: NewHistoryLog(store),
	}
}

func (q *QueryFacade) GetBatch(id uint64) (*Batch, error) {
	return loadBatch(q.store, id)
}

func (q *QueryFacade) GetHistoryLength(id uint64) (uint64, error) {
	if _, err := loadBatch(q.store, id); err != nil {
		return 0, err
	}
	return q.history.Length(id)
}

func (q *QueryFacade) GetHistoryRecord(id, index uint64) (*HistoryRecord, error) {
	if _, err := loadBatch(q.store, id); err != nil {
		return nil, err
	}
	rec, err := q.history.RecordAt(id, index)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetHistory returns every record of the batch in chronological order
func (q *QueryFacade) GetHistory(id uint64) ([]HistoryRecord, error) {
	if _, err := loadBatch(q.store, id); err != nil {
		return nil, err
	}
	return q.history.Records(id)
}

func (q *QueryFacade) RoleOf(account Account) (Role, error) {
	return q.roles.RoleOf(account)
}

// NextBatchID is the id the next successful CreateBatch will receive.
func (q *QueryFacade) NextBatchID() (uint64, error) {
	return GetUint64(q.store, keyNextBatchID, 1)
}

func (q *QueryFacade) Policy() (Policy, error) {
	return LoadPolicy(q.store)
}
