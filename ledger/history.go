package ledger

import "github.com/ahmadzakiakmal/produce-registry/kv"

// HistoryRecord is one custody event of a batch.
type HistoryRecord struct {
	From      Account `json:"from"`
	To        Account `json:"to"`
	ToRole    Role    `json:"to_role"`
	Timestamp int64   `json:"timestamp"`
	Note      string  `json:"note"`
}

// HistoryLog is the append-only per-batch custody log. It offers no way to edit or remove a
// record once appended.
type HistoryLog struct {
	store kv.Store
}

// NewHistoryLog creates a log over store
func NewHistoryLog(store kv.Store) *HistoryLog {
	return &HistoryLog{store: store}
}

// Append adds rec as the next record of batchID and returns its index.
func (h *HistoryLog) Append(batchID uint64, rec HistoryRecord) (uint64, error) {
	length, err := h.Length(batchID)
	if err != nil {
		return 0, err
	}
	if err := setJSON(h.store, historyRecordKey(batchID, length), rec); err != nil {
		return 0, err
	}
	if err := SetUint64(h.store, historyLenKey(batchID), length+1); err != nil {
		return 0, err
	}
	return length, nil
}

// Length returns the number of records of batchID. Unknown batches have length 0.
func (h *HistoryLog) Length(batchID uint64) (uint64, error) {
	return GetUint64(h.store, historyLenKey(batchID), 0)
}

// RecordAt returns the record at index
func (h *HistoryLog) RecordAt(batchID, index uint64) (HistoryRecord, error) {
	length, err := h.Length(batchID)
	if err != nil {
		return HistoryRecord{}, err
	}
	if index >= length {
		return HistoryRecord{}, errorf(KindIndexOutOfRange, "batch %d has %d history records, index %d requested", batchID, length, index)
	}

	var rec HistoryRecord
	found, err := getJSON(h.store, historyRecordKey(batchID, index), &rec)
	if err != nil {
		return HistoryRecord{}, err
	}
	if !found {
		return HistoryRecord{}, errorf(KindInternal, "history record %d of batch %d is missing", index, batchID)
	}
	return rec, nil
}

// Records returns the full history of batchID in order
func (h *HistoryLog) Records(batchID uint64) ([]HistoryRecord, error) {
	length, err := h.Length(batchID)
	if err != nil {
		return nil, err
	}
	records := make([]HistoryRecord, 0, length)
	for i := uint64(0); i < length; i++ {
		rec, err := h.RecordAt(batchID, i)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// lastTimestamp returns the timestamp of the newest record, or 0 for an empty log.
func (h *HistoryLog) lastTimestamp(batchID uint64) (int64, error) {
	length, err := h.Length(batchID)
	if err != nil || length == 0 {
		return 0, err
	}
	rec, err := h.RecordAt(batchID, length-1)
	if err != nil {
		return 0, err
	}
	return rec.Timestamp, nil
}
