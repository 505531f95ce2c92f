package ledger

import (
	"sort"
	"time"
)

// ChangeSet collects what a committed block changed, for off-chain projection.
type ChangeSet struct {
	Height  int64            `json:"height"`
	Time    time.Time        `json:"time"`
	AppHash []byte           `json:"app_hash"`
	TxCount int              `json:"tx_count"`
	Batches map[uint64]Batch `json:"batches"`
	Records []IndexedRecord  `json:"records"`
	Roles   []RoleChange     `json:"roles"`
}

func NewChangeSet(height int64, blockTime time.Time) *ChangeSet {
	return &ChangeSet{
		Height:  height,
		Time:    blockTime,
		Batches: make(map[uint64]Batch),
	}
}

// AddTransition records the latest snapshot of the batch and any record it appended
func (c *ChangeSet) AddTransition(t *Transition) {
	c.Batches[t.Batch.ID] = t.Batch
	if t.Record != nil {
		c.Records = append(c.Records, *t.Record)
	}
}

func (c *ChangeSet) AddRoleChange(rc RoleChange) {
	c.Roles = append(c.Roles, rc)
}

// BatchList returns the changed batches ordered by id
func (c *ChangeSet) BatchList() []Batch {
	batches := make([]Batch, 0, len(c.Batches))
	for _, b := range c.Batches {
		batches = append(batches, b)
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].ID < batches[j].ID })
	return batches
}

func (c *ChangeSet) Empty() bool {
	return len(c.Batches) == 0 && len(c.Records) == 0 && len(c.Roles) == 0
}
