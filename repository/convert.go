package repository

import (
	"encoding/hex"
	"math"
	"time"

	"github.com/ahmadzakiakmal/produce-registry/ledger"
	"github.com/ahmadzakiakmal/produce-registry/repository/models"
)

// clampInt64 maps ledger amounts onto bigint columns
func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// BlockModel converts the header fields of a change set
func BlockModel(cs *ledger.ChangeSet) models.LedgerBlock {
	return models.LedgerBlock{
		Height:    cs.Height,
		AppHash:   hex.EncodeToString(cs.AppHash),
		TxCount:   cs.TxCount,
		BlockTime: cs.Time.UTC(),
	}
}

// BatchModel converts a batch snapshot committed at height
func BatchModel(b ledger.Batch, height int64) models.Batch {
	return models.Batch{
		BatchID:           clampInt64(b.ID),
		MetadataReference: b.MetadataReference,
		OriginFarm:        b.OriginFarm,
		CropType:          b.CropType,
		HarvestDate:       time.Unix(b.HarvestDate, 0).UTC(),
		QualityScore:      clampInt64(b.QualityScore),
		UnitPrice:         clampInt64(b.UnitPrice),
		CurrentOwner:      b.CurrentOwner.String(),
		CurrentOwnerRole:  b.CurrentOwnerRole.String(),
		Finalized:         b.Finalized,
		UpdatedHeight:     height,
	}
}

func HistoryModel(rec ledger.IndexedRecord, height int64) models.HistoryRecord {
	return models.HistoryRecord{
		BatchID:     clampInt64(rec.BatchID),
		RecordIndex: clampInt64(rec.Index),
		FromAccount: rec.From.String(),
		ToAccount:   rec.To.String(),
		ToRole:      rec.ToRole.String(),
		Timestamp:   time.Unix(rec.Timestamp, 0).UTC(),
		Note:        rec.Note,
		Height:      height,
	}
}

func RoleModel(rc ledger.RoleChange, height int64) models.RoleAssignment {
	return models.RoleAssignment{
		Account:      rc.Account.String(),
		Role:         rc.Role.String(),
		PreviousRole: rc.Previous.String(),
		AssignedBy:   rc.By.String(),
		Height:       height,
	}
}

// dedupeRoles keeps the last change per account, in first-seen order
func dedupeRoles(changes []ledger.RoleChange, height int64) []models.RoleAssignment {
	index := make(map[string]int, len(changes))
	out := make([]models.RoleAssignment, 0, len(changes))
	for _, rc := range changes {
		m := RoleModel(rc, height)
		if i, ok := index[m.Account]; ok {
			m.PreviousRole = out[i].PreviousRole
			out[i] = m
			continue
		}
		index[m.Account] = len(out)
		out = append(out, m)
	}
	return out
}
