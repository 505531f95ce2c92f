package models

import "time"

// LedgerBlock records each committed block that has been projected
type LedgerBlock struct {
	Height    int64     `gorm:"column:height;primaryKey;autoIncrement:false"`
	AppHash   string    `gorm:"column:app_hash;type:varchar(64);not null"`
	TxCount   int       `gorm:"column:tx_count;not null"`
	BlockTime time.Time `gorm:"column:block_time;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (LedgerBlock) TableName() string {
	return "ledger_blocks"
}

// Batch is the latest committed snapshot of a batch. Amounts are stored as bigint.
type Batch struct {
	BatchID           int64     `gorm:"column:batch_id;primaryKey;autoIncrement:false"`
	MetadataReference string    `gorm:"column:metadata_reference;type:text"`
	OriginFarm        string    `gorm:"column:origin_farm;type:text"`
	CropType          string    `gorm:"column:crop_type;type:varchar(255);index"`
	HarvestDate       time.Time `gorm:"column:harvest_date"`
	QualityScore      int64     `gorm:"column:quality_score;not null"`
	UnitPrice         int64     `gorm:"column:unit_price;not null"`
	CurrentOwner      string    `gorm:"column:current_owner;type:varchar(40);index;not null"`
	CurrentOwnerRole  string    `gorm:"column:current_owner_role;type:varchar(20);not null"`
	Finalized         bool      `gorm:"column:finalized;default:false;index"`
	UpdatedHeight     int64     `gorm:"column:updated_height;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`

	// NOTE: history is loaded explicitly, not preloaded, to keep list queries small
}

// HistoryRecord is one custody event. (batch_id, record_index) is unique so replays are no-ops.
type HistoryRecord struct {
	BatchID     int64     `gorm:"column:batch_id;primaryKey;autoIncrement:false"`
	RecordIndex int64     `gorm:"column:record_index;primaryKey;autoIncrement:false"`
	Batch       *Batch    `gorm:"foreignKey:BatchID;references:BatchID"`
	FromAccount string    `gorm:"column:from_account;type:varchar(40);not null"`
	ToAccount   string    `gorm:"column:to_account;type:varchar(40);index;not null"`
	ToRole      string    `gorm:"column:to_role;type:varchar(20);not null"`
	Timestamp   time.Time `gorm:"column:timestamp;not null"`
	Note        string    `gorm:"column:note;type:text"`
	Height      int64     `gorm:"column:height;not null"`
}

// RoleAssignment is the current role of an account
type RoleAssignment struct {
	Account      string    `gorm:"column:account;primaryKey;type:varchar(40)"`
	Role         string    `gorm:"column:role;type:varchar(20);index;not null"`
	PreviousRole string    `gorm:"column:previous_role;type:varchar(20)"`
	AssignedBy   string    `gorm:"column:assigned_by;type:varchar(40)"`
	Height       int64     `gorm:"column:height;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (RoleAssignment) TableName() string {
	return "roles"
}
