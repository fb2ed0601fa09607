package notes

import (
	"context"
	"testing"
	"time"
)

func TestEligiblePromptsScopedToNote(t *testing.T) {
	db, clock := newTestDatabase(t, []string{"note-1", "note-2"})
	ctx := context.Background()

	first := mustCreateNote(t, db, NoteDraft{Title: "a", Body: "Alpha is ?[x](1)"})
	mustCreateNote(t, db, NoteDraft{Title: "b", Body: "Beta is ?[y](2)"})

	all, err := db.EligiblePrompts(ctx, clock.Now(), nil)
	if err != nil {
		t.Fatalf("failed to list eligible prompts: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 eligible prompts, got %v", all)
	}

	scoped, err := db.EligiblePrompts(ctx, clock.Now(), &first.ID)
	if err != nil {
		t.Fatalf("failed to list scoped prompts: %v", err)
	}
	if len(scoped) != 1 || scoped[0].NoteID != first.ID {
		t.Fatalf("unexpected scoped prompts %v", scoped)
	}
}

func TestEligiblePromptsDueBoundary(t *testing.T) {
	db, clock := newTestDatabase(t, []string{"note-1"})
	ctx := context.Background()

	note := mustCreateNote(t, db, NoteDraft{Title: "a", Body: "Gamma is ?[x](1)"})
	identifier := PromptIdentifier{NoteID: note.ID, Key: PrimaryContentKey, Index: 0}

	answeredAt := clock.Now()
	record, err := db.RecordAnswer(ctx, StudyAnswer{Prompt: identifier, Correct: 1, At: answeredAt}, false)
	if err != nil {
		t.Fatalf("failed to record answer: %v", err)
	}
	due := timeFromMillis(*record.DueMillis)

	justBefore, err := db.EligiblePrompts(ctx, due.Add(-time.Millisecond), nil)
	if err != nil {
		t.Fatalf("failed to list prompts: %v", err)
	}
	if len(justBefore) != 0 {
		t.Fatalf("prompt eligible before its due time: %v", justBefore)
	}

	atDue, err := db.EligiblePrompts(ctx, due, nil)
	if err != nil {
		t.Fatalf("failed to list prompts: %v", err)
	}
	if len(atDue) != 1 {
		t.Fatalf("prompt not eligible exactly at its due time: %v", atDue)
	}
}

func TestStudySessionFiltersByMetadata(t *testing.T) {
	db, clock := newTestDatabase(t, []string{"note-1", "note-2", "note-3"})
	ctx := context.Background()

	keep := mustCreateNote(t, db, NoteDraft{Title: "a", Body: "Alpha is ?[x](1)", Folder: "biology"})
	mustCreateNote(t, db, NoteDraft{Title: "b", Body: "Beta is ?[y](2)", Folder: "history"})
	mustCreateNote(t, db, NoteDraft{Title: "c", Body: "no prompts here", Folder: "biology"})

	session, err := db.StudySession(ctx, func(_ NoteID, metadata NoteMetadataRecord) bool {
		return metadata.Folder == "biology"
	}, clock.Now())
	if err != nil {
		t.Fatalf("failed to assemble session: %v", err)
	}
	if len(session) != 1 || session[0].NoteID != keep.ID {
		t.Fatalf("unexpected session %v", session)
	}

	unfiltered, err := db.StudySession(ctx, nil, clock.Now())
	if err != nil {
		t.Fatalf("failed to assemble unfiltered session: %v", err)
	}
	if len(unfiltered) != 2 {
		t.Fatalf("expected 2 prompts without filter, got %v", unfiltered)
	}
}
