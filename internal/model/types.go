package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// PredictionRecord indexes one emulator evaluation. The arrays themselves
// live in the npz archive at OutputPath.
type PredictionRecord struct {
	VersionedRecord
	ID           string      `json:"id"`
	Variant      string      `json:"variant"`
	Version      string      `json:"version"`
	CreatedAtUTC time.Time   `json:"created_at_utc"`
	Inputs       [][]float64 `json:"inputs"`
	Normalized   bool        `json:"normalized"`
	Keys         []string    `json:"keys"`
	OutputPath   string      `json:"output_path,omitempty"`
}

// Batch is the number of parameter sets the record covers.
func (r PredictionRecord) Batch() int {
	return len(r.Inputs)
}
