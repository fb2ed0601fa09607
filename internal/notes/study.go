package notes

import (
	"context"
	"time"
)

// EligiblePrompts returns the identifiers of every prompt that is due at
// asOf (a never-scheduled prompt is always due), across non-deleted
// notes, optionally scoped to one note. The result is complete and
// duplicate-free; ordering is unspecified. Safe to call from any
// goroutine: it reads a committed snapshot.
func (d *Database) EligiblePrompts(ctx context.Context, asOf time.Time, scope *NoteID) ([]PromptIdentifier, error) {
	db, err := d.reader(opEligiblePrompts)
	if err != nil {
		return nil, err
	}

	query := db.WithContext(ctx).Model(&PromptRecord{}).
		Joins("JOIN notes ON notes.id = prompts.note_id AND notes.deleted = ?", false).
		Where("prompts.due_ms IS NULL OR prompts.due_ms <= ?", millis(asOf.UTC()))
	if scope != nil {
		query = query.Where("prompts.note_id = ?", scope.String())
	}

	var records []PromptRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, d.fail(opEligiblePrompts, reasonQueryFailed, err)
	}

	identifiers := make([]PromptIdentifier, 0, len(records))
	for _, record := range records {
		identifiers = append(identifiers, record.Identifier())
	}
	return identifiers, nil
}

// StudySession assembles the review queue for asOf, keeping only prompts
// whose note passes the caller's filter. A nil filter keeps everything.
// Downstream consumers apply their own shuffle, uniqueness or limit
// transforms.
func (d *Database) StudySession(ctx context.Context, filter func(NoteID, NoteMetadataRecord) bool, asOf time.Time) ([]PromptIdentifier, error) {
	eligible, err := d.EligiblePrompts(ctx, asOf, nil)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		return eligible, nil
	}

	metadata := d.Metadata()
	session := make([]PromptIdentifier, 0, len(eligible))
	for _, identifier := range eligible {
		record, ok := metadata[identifier.NoteID]
		if !ok || !filter(identifier.NoteID, record) {
			continue
		}
		session = append(session, identifier)
	}
	return session, nil
}
