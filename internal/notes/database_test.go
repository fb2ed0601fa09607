package notes

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestOpenRequiresIdentity(t *testing.T) {
	db := NewDatabase(Config{Path: filepath.Join(t.TempDir(), "notes.db")})

	err := db.Open(context.Background())
	if !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
	if db.State() != StateClosed {
		t.Fatalf("expected closed state, got %s", db.State())
	}
}

func TestOperationsRequireOpenState(t *testing.T) {
	db := NewDatabase(Config{
		Path:     filepath.Join(t.TempDir(), "notes.db"),
		Identity: staticIdentity{id: "device-1"},
	})
	ctx := context.Background()

	if _, err := db.CreateNote(ctx, NoteDraft{Title: "draft"}); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen from CreateNote, got %v", err)
	}
	if _, err := db.Note(ctx, NoteID("missing")); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen from Note, got %v", err)
	}
	if _, err := db.Search(ctx, "anything"); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen from Search, got %v", err)
	}
	if _, err := db.EligiblePrompts(ctx, testEpoch, nil); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen from EligiblePrompts, got %v", err)
	}
}

func TestStateSurvivesReopen(t *testing.T) {
	db, _ := newTestDatabase(t, []string{"note-1"})
	ctx := context.Background()

	created := mustCreateNote(t, db, NoteDraft{Title: "persisted", Body: "body text"})
	if err := db.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}
	if db.State() != StateClosed {
		t.Fatalf("expected closed state, got %s", db.State())
	}

	if err := db.Open(ctx); err != nil {
		t.Fatalf("failed to reopen: %v", err)
	}
	reloaded, err := db.Note(ctx, created.ID)
	if err != nil {
		t.Fatalf("failed to load note after reopen: %v", err)
	}
	if !reloaded.Equal(created) {
		t.Fatalf("note changed across reopen: %+v vs %+v", reloaded, created)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	db, _ := newTestDatabase(t, nil)
	if err := db.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}

func TestWritesStampMonotonicSequence(t *testing.T) {
	db, _ := newTestDatabase(t, []string{"note-1", "note-2", "note-3"})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mustCreateNote(t, db, NoteDraft{Title: "note", Body: "plain body"})
	}

	var device DeviceRecord
	if err := db.db.WithContext(ctx).Take(&device, "uuid = ?", "device-1").Error; err != nil {
		t.Fatalf("failed to load device row: %v", err)
	}
	if device.UpdateSequenceNumber != 2 {
		t.Fatalf("expected sequence 2 after three writes, got %d", device.UpdateSequenceNumber)
	}

	var records []NoteRecord
	if err := db.db.WithContext(ctx).Order("update_sequence_number ASC").Find(&records).Error; err != nil {
		t.Fatalf("failed to load note rows: %v", err)
	}
	for i, record := range records {
		if record.UpdateSequenceNumber != int64(i) {
			t.Fatalf("expected sequence %d on note %s, got %d", i, record.ID, record.UpdateSequenceNumber)
		}
		if record.ModifiedDevice != "device-1" {
			t.Fatalf("unexpected writer %s", record.ModifiedDevice)
		}
	}
}

func TestSubscribeNotifiesAfterCommit(t *testing.T) {
	db, _ := newTestDatabase(t, []string{"note-1", "note-2"})

	notifications := 0
	subscription := db.Subscribe(func() {
		notifications++
	})

	mustCreateNote(t, db, NoteDraft{Title: "first", Body: "body"})
	if notifications != 1 {
		t.Fatalf("expected 1 notification, got %d", notifications)
	}

	subscription.Cancel()
	subscription.Cancel()
	mustCreateNote(t, db, NoteDraft{Title: "second", Body: "body"})
	if notifications != 1 {
		t.Fatalf("expected no notification after cancel, got %d", notifications)
	}
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.db")
	ctx := context.Background()
	identity := staticIdentity{id: "device-1", name: "laptop"}

	writable := NewDatabase(Config{
		Path:       path,
		Identity:   identity,
		IDProvider: &staticIDGenerator{ids: []string{"note-1"}},
	})
	if err := writable.Open(ctx); err != nil {
		t.Fatalf("failed to open writable store: %v", err)
	}
	if _, err := writable.CreateNote(ctx, NoteDraft{Title: "seed", Body: "body"}); err != nil {
		t.Fatalf("failed to seed note: %v", err)
	}
	if err := writable.Close(); err != nil {
		t.Fatalf("failed to close writable store: %v", err)
	}

	readOnly := NewDatabase(Config{Path: path, Identity: identity, ReadOnly: true})
	if err := readOnly.Open(ctx); err != nil {
		t.Fatalf("failed to open read-only store: %v", err)
	}
	defer readOnly.Close() //nolint:errcheck

	if _, err := readOnly.Note(ctx, NoteID("note-1")); err != nil {
		t.Fatalf("read failed on read-only store: %v", err)
	}
	if _, err := readOnly.CreateNote(ctx, NoteDraft{Title: "rejected"}); !errors.Is(err, ErrNotWritable) {
		t.Fatalf("expected ErrNotWritable, got %v", err)
	}
	if err := readOnly.DeleteNote(ctx, NoteID("note-1")); !errors.Is(err, ErrNotWritable) {
		t.Fatalf("expected ErrNotWritable from delete, got %v", err)
	}
}

func TestDatabaseErrorCarriesCode(t *testing.T) {
	db, _ := newTestDatabase(t, nil)

	_, err := db.Note(context.Background(), NoteID("missing"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var databaseErr *DatabaseError
	if !errors.As(err, &databaseErr) {
		t.Fatalf("expected DatabaseError, got %T", err)
	}
	if databaseErr.Code() != "notes.note.not_found" {
		t.Fatalf("unexpected code %s", databaseErr.Code())
	}
}
