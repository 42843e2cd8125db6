package storage

import (
	"context"
	"testing"
	"time"

	"emu21cm/internal/model"
)

func testRecord(id string, created time.Time) model.PredictionRecord {
	r := NewPredictionRecord("default", "v1.0.0", [][]float64{{0.1, 0.2}, {0.3, 0.4}}, true, []string{"Tb", "xHI"}, "/tmp/"+id+".npz")
	r.ID = id
	r.CreatedAtUTC = created
	return r
}

// exerciseStore runs the behaviour every backend shares.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := store.SavePrediction(ctx, testRecord(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	got, ok, err := store.GetPrediction(ctx, "b")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted prediction")
	}
	if got.Variant != "default" || got.Batch() != 2 || got.Inputs[1][0] != 0.3 || len(got.Keys) != 2 || !got.Normalized {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !got.CreatedAtUTC.Equal(base.Add(time.Minute)) {
		t.Fatalf("unexpected created time: %v", got.CreatedAtUTC)
	}

	if _, ok, err := store.GetPrediction(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing record, got ok=%v err=%v", ok, err)
	}

	list, err := store.ListPredictions(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].ID != "c" || list[2].ID != "a" {
		t.Fatalf("expected newest first, got %+v", ids(list))
	}
	limited, err := store.ListPredictions(ctx, 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 || limited[1].ID != "b" {
		t.Fatalf("unexpected limited list: %v", ids(limited))
	}

	if err := store.DeletePrediction(ctx, "c"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.GetPrediction(ctx, "c"); ok {
		t.Fatal("expected deleted record to be gone")
	}

	updated := testRecord("a", base)
	updated.Keys = []string{"PS"}
	if err := store.SavePrediction(ctx, updated); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _, _ = store.GetPrediction(ctx, "a")
	if len(got.Keys) != 1 || got.Keys[0] != "PS" {
		t.Fatalf("expected overwritten keys, got %v", got.Keys)
	}

	stale := testRecord("old", base)
	stale.SchemaVersion = 0
	if err := store.SavePrediction(ctx, stale); err == nil {
		t.Fatal("expected version mismatch on save")
	}
}

func ids(records []model.PredictionRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
