package database

import (
	"path/filepath"
	"reflect"
	"sort"
	"testing"
)

func TestSearchContentMatchesPrefixes(t *testing.T) {
	db := mustOpenStore(t, filepath.Join(t.TempDir(), "store.db"))

	rows := []contentRow{
		{NoteID: "note-1", Key: "body", Text: "Mitochondria produce cellular energy."},
		{NoteID: "note-2", Key: "body", Text: "Photosynthesis converts light."},
		{NoteID: "note-2", Key: "appendix", Text: "Chloroplasts host photosynthesis."},
	}
	for _, row := range rows {
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("failed to insert content: %v", err)
		}
	}

	matches, err := SearchContent(db, "mitoch")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !reflect.DeepEqual(matches, []string{"note-1"}) {
		t.Fatalf("unexpected matches %v", matches)
	}

	// Both content rows of note-2 match, but the note id appears once.
	matches, err = SearchContent(db, "photosyn")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !reflect.DeepEqual(matches, []string{"note-2"}) {
		t.Fatalf("expected distinct note ids, got %v", matches)
	}

	matches, err = SearchContent(db, "xylophone")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %v", matches)
	}
}

func TestSearchContentEmptyPatternReturnsEverything(t *testing.T) {
	db := mustOpenStore(t, filepath.Join(t.TempDir(), "store.db"))

	for _, row := range []contentRow{
		{NoteID: "note-1", Key: "body", Text: "alpha"},
		{NoteID: "note-2", Key: "body", Text: "beta"},
	} {
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("failed to insert content: %v", err)
		}
	}

	matches, err := SearchContent(db, "   ")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	sort.Strings(matches)
	if !reflect.DeepEqual(matches, []string{"note-1", "note-2"}) {
		t.Fatalf("unexpected matches %v", matches)
	}
}

func TestSearchContentEscapesQuotes(t *testing.T) {
	db := mustOpenStore(t, filepath.Join(t.TempDir(), "store.db"))

	row := contentRow{NoteID: "note-1", Key: "body", Text: `He said "hello" and left.`}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("failed to insert content: %v", err)
	}

	if _, err := SearchContent(db, `"hello"`); err != nil {
		t.Fatalf("quoted pattern must not break the query: %v", err)
	}
}

func TestSearchContentTracksUpdatesAndDeletes(t *testing.T) {
	db := mustOpenStore(t, filepath.Join(t.TempDir(), "store.db"))

	row := contentRow{NoteID: "note-1", Key: "body", Text: "original wording"}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("failed to insert content: %v", err)
	}

	if err := db.Model(&contentRow{}).
		Where("note_id = ? AND key = ?", "note-1", "body").
		Update("text", "revised wording").Error; err != nil {
		t.Fatalf("failed to update content: %v", err)
	}
	matches, err := SearchContent(db, "revised")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("index missed the update: %v", matches)
	}
	matches, err = SearchContent(db, "original")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("index kept the stale text: %v", matches)
	}

	if err := db.Where("note_id = ?", "note-1").Delete(&contentRow{}).Error; err != nil {
		t.Fatalf("failed to delete content: %v", err)
	}
	matches, err = SearchContent(db, "revised")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("index survived the delete: %v", matches)
	}
}

func TestRebuildRepairsCorruptedIndex(t *testing.T) {
	db := mustOpenStore(t, filepath.Join(t.TempDir(), "store.db"))

	row := contentRow{NoteID: "note-1", Key: "body", Text: "healthy content"}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("failed to insert content: %v", err)
	}

	// Plant an index entry with no backing content row.
	if err := db.Exec(`INSERT INTO content_index(rowid, text) VALUES (9999, 'phantom')`).Error; err != nil {
		t.Fatalf("failed to corrupt index: %v", err)
	}
	if err := CheckContentIndex(db); err == nil {
		t.Fatalf("expected the integrity probe to fail")
	}

	if err := RebuildContentIndex(db); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if err := CheckContentIndex(db); err != nil {
		t.Fatalf("probe still failing after rebuild: %v", err)
	}

	matches, err := SearchContent(db, "healthy")
	if err != nil {
		t.Fatalf("search failed after rebuild: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("rebuild lost content: %v", matches)
	}
}
