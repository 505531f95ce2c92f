package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ahmadzakiakmal/produce-registry/ledger"
	"github.com/ahmadzakiakmal/produce-registry/repository/models"
)

// PostgreSQL error codes
const (
	PgErrForeignKeyViolation = "23503"
	PgErrUniqueViolation     = "23505"
)

// RepositoryError represents repository layer errors
type RepositoryError struct {
	Code    string
	Message string
	Detail  string
}

func (e *RepositoryError) Error() string {
	if e.Detail == "" {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
}

var errBlockProjected = errors.New("block already projected")

type Repository struct {
	db        *gorm.DB
	rpcClient ConsensusClient
}

func NewRepository() *Repository {
	return &Repository{}
}

// ConnectDB opens the projection database, retrying while postgres starts, and migrates it
func (r *Repository) ConnectDB(dsn string) error {
	var lastErr error
	for i := range 10 {
		log.Printf("Connection attempt %d...\n", i+1)
		db, err := gorm.Open(postgres.Open(dsn))
		if err != nil {
			log.Printf("Connection attempt %d, failed: %v\n", i+1, err)
			lastErr = err
			time.Sleep(2 * time.Second)
			continue
		}
		r.db = db
		break
	}
	if r.db == nil {
		return fmt.Errorf("connecting to postgres: %w", lastErr)
	}

	if err := r.Migrate(); err != nil {
		return err
	}
	log.Println("Connected to DB and completed setup")
	return nil
}

// Connected reports whether a projection database is attached
func (r *Repository) Connected() bool {
	return r.db != nil
}

// Migrate creates the projection tables. Batches must exist before history references them.
func (r *Repository) Migrate() error {
	migrator := r.db.Migrator()

	tables := []struct {
		name  string
		model any
	}{
		{"LedgerBlock", &models.LedgerBlock{}},
		{"Batch", &models.Batch{}},
		{"HistoryRecord", &models.HistoryRecord{}},
		{"RoleAssignment", &models.RoleAssignment{}},
	}
	for _, t := range tables {
		if migrator.HasTable(t.model) {
			log.Printf("✓ %s table already exists", t.name)
			continue
		}
		if err := migrator.CreateTable(t.model); err != nil {
			return fmt.Errorf("creating %s table: %w", t.name, err)
		}
		log.Printf("✓ %s table created", t.name)
	}

	log.Println("Database migration completed successfully")
	return nil
}

// ProjectBlock mirrors the changes of one committed block into postgres in a single database
// transaction. A block that was already projected, for example when CometBFT replays blocks on
// restart, is skipped.
func (r *Repository) ProjectBlock(ctx context.Context, cs *ledger.ChangeSet) error {
	if r.db == nil {
		return nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		block := BlockModel(cs)
		if err := tx.Create(&block).Error; err != nil {
			if isPgError(err, PgErrUniqueViolation) {
				return errBlockProjected
			}
			return err
		}

		if batches := cs.BatchList(); len(batches) > 0 {
			rows := make([]models.Batch, len(batches))
			for i, b := range batches {
				rows[i] = BatchModel(b, cs.Height)
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "batch_id"}},
				DoUpdates: clause.AssignmentColumns(batchUpdateColumns),
			}).Create(&rows).Error
			if err != nil {
				return fmt.Errorf("upserting batches: %w", err)
			}
		}

		if len(cs.Records) > 0 {
			rows := make([]models.HistoryRecord, len(cs.Records))
			for i, rec := range cs.Records {
				rows[i] = HistoryModel(rec, cs.Height)
			}
			err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
			if err != nil {
				return fmt.Errorf("inserting history: %w", err)
			}
		}

		if len(cs.Roles) > 0 {
			rows := dedupeRoles(cs.Roles, cs.Height)
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "account"}},
				DoUpdates: clause.AssignmentColumns([]string{"role", "previous_role", "assigned_by", "height", "updated_at"}),
			}).Create(&rows).Error
			if err != nil {
				return fmt.Errorf("upserting roles: %w", err)
			}
		}
		return nil
	})
	if errors.Is(err, errBlockProjected) {
		log.Printf("Block %d already projected, skipping", cs.Height)
		return nil
	}
	return err
}

var batchUpdateColumns = []string{
	"metadata_reference", "origin_farm", "crop_type", "harvest_date", "quality_score",
	"unit_price", "current_owner", "current_owner_role", "finalized", "updated_height", "updated_at",
}

// BatchFilter narrows ListBatches. Zero values match everything.
type BatchFilter struct {
	Owner     string
	CropType  string
	Finalized *bool
	Limit     int
	Offset    int
}

const maxListLimit = 500

// ListBatches searches the projection. Results may trail the chain by the block being committed.
func (r *Repository) ListBatches(ctx context.Context, f BatchFilter) ([]models.Batch, *RepositoryError) {
	if r.db == nil {
		return nil, projectionDisabled()
	}

	query := r.db.WithContext(ctx).Model(&models.Batch{})
	if f.Owner != "" {
		owner, err := ledger.ParseAccount(f.Owner)
		if err != nil {
			return nil, &RepositoryError{
				Code:    "INVALID_ARGUMENT",
				Message: "Invalid owner account",
				Detail:  err.Error(),
			}
		}
		query = query.Where("current_owner = ?", owner.String())
	}
	if f.CropType != "" {
		query = query.Where("crop_type = ?", f.CropType)
	}
	if f.Finalized != nil {
		query = query.Where("finalized = ?", *f.Finalized)
	}

	limit := f.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	var batches []models.Batch
	err := query.Order("batch_id").Limit(limit).Offset(f.Offset).Find(&batches).Error
	if err != nil {
		return nil, &RepositoryError{
			Code:    "DATABASE_ERROR",
			Message: "Failed to query batches",
			Detail:  err.Error(),
		}
	}
	return batches, nil
}

// GetHistoryByAccount returns the custody events that handed a batch to account
func (r *Repository) GetHistoryByAccount(ctx context.Context, account string) ([]models.HistoryRecord, *RepositoryError) {
	if r.db == nil {
		return nil, projectionDisabled()
	}
	a, err := ledger.ParseAccount(account)
	if err != nil {
		return nil, &RepositoryError{
			Code:    "INVALID_ARGUMENT",
			Message: "Invalid account",
			Detail:  err.Error(),
		}
	}

	var records []models.HistoryRecord
	err = r.db.WithContext(ctx).
		Where("to_account = ?", a.String()).
		Order("height, batch_id, record_index").
		Find(&records).Error
	if err != nil {
		return nil, &RepositoryError{
			Code:    "DATABASE_ERROR",
			Message: "Failed to query history",
			Detail:  err.Error(),
		}
	}
	return records, nil
}

// LastProjectedBlock returns the newest projected block
func (r *Repository) LastProjectedBlock(ctx context.Context) (*models.LedgerBlock, *RepositoryError) {
	if r.db == nil {
		return nil, projectionDisabled()
	}
	var block models.LedgerBlock
	err := r.db.WithContext(ctx).Order("height desc").First(&block).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &RepositoryError{
				Code:    "NOT_FOUND",
				Message: "No block projected yet",
			}
		}
		return nil, &RepositoryError{
			Code:    "DATABASE_ERROR",
			Message: "Failed to query blocks",
			Detail:  err.Error(),
		}
	}
	return &block, nil
}

func projectionDisabled() *RepositoryError {
	return &RepositoryError{
		Code:    "PROJECTION_DISABLED",
		Message: "No projection database is configured",
	}
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
