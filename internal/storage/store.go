package storage

import (
	"context"
	"sort"

	"emu21cm/internal/model"
)

// Store persists the prediction history.
type Store interface {
	Init(ctx context.Context) error
	SavePrediction(ctx context.Context, record model.PredictionRecord) error
	GetPrediction(ctx context.Context, id string) (model.PredictionRecord, bool, error)
	// ListPredictions returns records newest first; limit <= 0 means all.
	ListPredictions(ctx context.Context, limit int) ([]model.PredictionRecord, error)
	DeletePrediction(ctx context.Context, id string) error
}

func sortNewestFirst(records []model.PredictionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAtUTC.Equal(records[j].CreatedAtUTC) {
			return records[i].CreatedAtUTC.After(records[j].CreatedAtUTC)
		}
		return records[i].ID < records[j].ID
	})
}

func applyLimit(records []model.PredictionRecord, limit int) []model.PredictionRecord {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}
