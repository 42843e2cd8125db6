package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"emu21cm/internal/model"
)

var predictionsBucket = []byte("predictions")

// BoltStore keeps the prediction history in a single bbolt file.
type BoltStore struct {
	path string

	mu sync.RWMutex
	db *bbolt.DB
}

func NewBoltStore(path string) *BoltStore {
	return &BoltStore{path: path}
}

func (s *BoltStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("bolt path is required")
	}
	if s.db != nil {
		return nil
	}
	db, err := bbolt.Open(s.path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("open bolt store %s: %w", s.path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(predictionsBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return err
	}
	s.db = db
	return nil
}

func (s *BoltStore) SavePrediction(_ context.Context, record model.PredictionRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return err
	}
	payload, err := EncodePrediction(record)
	if err != nil {
		return err
	}
	return db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(predictionsBucket).Put([]byte(record.ID), payload)
	})
}

func (s *BoltStore) GetPrediction(_ context.Context, id string) (model.PredictionRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.PredictionRecord{}, false, err
	}
	var payload []byte
	if err := db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(predictionsBucket).Get([]byte(id))
		if v != nil {
			payload = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return model.PredictionRecord{}, false, err
	}
	if payload == nil {
		return model.PredictionRecord{}, false, nil
	}
	record, err := DecodePrediction(payload)
	if err != nil {
		return model.PredictionRecord{}, false, fmt.Errorf("decode prediction %s: %w", id, err)
	}
	return record, true, nil
}

// ListPredictions respects context cancellation during iteration.
func (s *BoltStore) ListPredictions(ctx context.Context, limit int) ([]model.PredictionRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	var out []model.PredictionRecord
	err = db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(predictionsBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			record, err := DecodePrediction(v)
			if err != nil {
				return fmt.Errorf("decode prediction %s: %w", k, err)
			}
			out = append(out, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(out)
	return applyLimit(out, limit), nil
}

func (s *BoltStore) DeletePrediction(_ context.Context, id string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	return db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(predictionsBucket).Delete([]byte(id))
	})
}

func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *BoltStore) getDB() (*bbolt.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}
