package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"emu21cm/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// NewPredictionRecord stamps a fresh id, the current record versions and
// the creation time.
func NewPredictionRecord(variant, version string, inputs [][]float64, normalized bool, keys []string, outputPath string) model.PredictionRecord {
	return model.PredictionRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		ID:              uuid.NewString(),
		Variant:         variant,
		Version:         version,
		CreatedAtUTC:    time.Now().UTC(),
		Inputs:          inputs,
		Normalized:      normalized,
		Keys:            append([]string(nil), keys...),
		OutputPath:      outputPath,
	}
}

func EncodePrediction(r model.PredictionRecord) ([]byte, error) {
	if r.ID == "" {
		return nil, errors.New("prediction record id is required")
	}
	return json.Marshal(r)
}

func DecodePrediction(data []byte) (model.PredictionRecord, error) {
	var record model.PredictionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.PredictionRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.PredictionRecord{}, err
	}
	return record, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
