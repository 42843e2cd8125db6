package storage

import (
	"context"
	"errors"
	"sync"

	"emu21cm/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	predictions map[string]model.PredictionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.predictions = make(map[string]model.PredictionRecord)
	return nil
}

func (s *MemoryStore) SavePrediction(_ context.Context, record model.PredictionRecord) error {
	if err := checkVersion(record.VersionedRecord); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.predictions[record.ID] = cloneRecord(record)
	return nil
}

func (s *MemoryStore) GetPrediction(_ context.Context, id string) (model.PredictionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.predictions[id]
	if !ok {
		return model.PredictionRecord{}, false, nil
	}
	return cloneRecord(record), true, nil
}

func (s *MemoryStore) ListPredictions(_ context.Context, limit int) ([]model.PredictionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.PredictionRecord, 0, len(s.predictions))
	for _, record := range s.predictions {
		out = append(out, cloneRecord(record))
	}
	sortNewestFirst(out)
	return applyLimit(out, limit), nil
}

func (s *MemoryStore) DeletePrediction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.predictions, id)
	return nil
}

func cloneRecord(r model.PredictionRecord) model.PredictionRecord {
	out := r
	out.Inputs = make([][]float64, len(r.Inputs))
	for i, row := range r.Inputs {
		out.Inputs[i] = append([]float64(nil), row...)
	}
	out.Keys = append([]string(nil), r.Keys...)
	return out
}
