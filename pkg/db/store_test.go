package db

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"github.com/japaniel/typohmm/pkg/hmm"
	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Ensure single connection to avoid separate in-memory DBs per connection.
	db.SetMaxOpenConns(1)
	if err := InitDB(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testModel() *hmm.Model {
	return hmm.Estimate([]hmm.Record{
		{Correct: "helo", Typed: []string{"helo", "hwlo", "heol"}},
		{Correct: "cat", Typed: []string{"ca", "cta"}},
		{Correct: "a", Typed: []string{"s"}},
	})
}

func TestSaveAndLoadModel(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	m := testModel()
	id, err := SaveModel(context.Background(), db, "aspell", m, 3)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, loadedID, err := LoadModel(db, "aspell")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loadedID != id {
		t.Fatalf("expected id %d, got %d", id, loadedID)
	}
	if !reflect.DeepEqual(loaded.Emissions.Contexts(), m.Emissions.Contexts()) {
		t.Fatalf("state order changed: %v vs %v", loaded.Emissions.Contexts(), m.Emissions.Contexts())
	}
	for _, c := range m.Emissions.Contexts() {
		if !reflect.DeepEqual(loaded.Emissions.Counts(c).Events(), m.Emissions.Counts(c).Events()) {
			t.Fatalf("events of %q changed", c)
		}
		for _, ev := range m.Emissions.Counts(c).Events() {
			if loaded.Emissions.Count(c, ev) != m.Emissions.Count(c, ev) {
				t.Fatalf("emission[%q][%q] mismatch", c, ev)
			}
		}
	}
	if got := loaded.Emissions.Count("t", hmm.Deleted); got != 1 {
		t.Fatalf("expected deletion count 1 for t, got %d", got)
	}
	if got := loaded.Transitions.Count(hmm.StartState, "h"); got != 1 {
		t.Fatalf("expected start->h 1, got %d", got)
	}

	typed := []string{"hwlo", "cta", "s", "zz"}
	want := hmm.NewDecoder(m).DecodeWords(typed)
	got := hmm.NewDecoder(loaded).DecodeWords(typed)
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("decoder output differs after reload: %v vs %v", want, got)
	}
}

func TestSaveModelReplaces(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	id1, err := SaveModel(ctx, db, "m", testModel(), 3)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := RecordCorrection(db, id1, "hwlo", "helo", "stdin"); err != nil {
		t.Fatalf("record: %v", err)
	}
	small := hmm.Estimate([]hmm.Record{{Correct: "ab", Typed: []string{"ab"}}})
	id2, err := SaveModel(ctx, db, "m", small, 1)
	if err != nil {
		t.Fatalf("save 2: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected model id to be kept, got %d and %d", id1, id2)
	}
	loaded, _, err := LoadModel(db, "m")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Emissions.Len() != 2 {
		t.Fatalf("expected 2 states after replace, got %d", loaded.Emissions.Len())
	}
	hist, err := GetCorrections(db, id1, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("expected history to survive replace, got %d rows", len(hist))
	}
	models, err := ListModels(db)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(models) != 1 || models[0].RecordCount != 1 {
		t.Fatalf("unexpected models %+v", models)
	}
}

func TestLoadModelNotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	if _, _, err := LoadModel(db, "missing"); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestLoadModelDetectsTamperedTotals(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	id, err := SaveModel(context.Background(), db, "m", testModel(), 3)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := db.Exec(`UPDATE contexts SET total = total + 1 WHERE model_id = ? AND kind = ? AND context = 'h'`, id, KindEmission); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, _, err := LoadModel(db, "m"); err == nil {
		t.Fatalf("expected inconsistent totals to be rejected")
	}
}

func TestCorrectionsHistory(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	id, err := SaveModel(context.Background(), db, "m", testModel(), 3)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := RecordCorrection(db, 0, "a", "b", ""); err == nil {
		t.Fatalf("expected error for zero model id")
	}
	for _, pair := range [][2]string{{"hwlo", "helo"}, {"cta", "cat"}, {"heol", "helo"}} {
		if err := RecordCorrection(db, id, pair[0], pair[1], ""); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	hist, err := GetCorrections(db, id, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(hist))
	}
	if hist[0].Typed != "heol" || hist[0].Decoded != "helo" {
		t.Fatalf("expected most recent first, got %+v", hist[0])
	}
	if hist[0].Source != "" {
		t.Fatalf("expected empty source, got %q", hist[0].Source)
	}
}
