package notes

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/karstlabs/commonplace/internal/database"
	"github.com/karstlabs/commonplace/internal/markdown"
)

const markdownMIMEType = "text/markdown"

// CreateNote persists a new note from the draft, extracts its hashtags
// and prompts, and returns the stored note.
func (d *Database) CreateNote(ctx context.Context, draft NoteDraft) (Note, error) {
	rawID, err := d.idProvider.NewID()
	if err != nil {
		return Note{}, d.fail(opCreateNote, "id_generation_failed", err)
	}
	id, err := NewNoteID(rawID)
	if err != nil {
		return Note{}, d.fail(opCreateNote, "id_invalid", err)
	}

	now := d.clock().UTC()
	var created Note
	err = d.write(ctx, opCreateNote, func(tx *gorm.DB, stamp UpdateIdentifier) error {
		record := NoteRecord{
			ID:                   id.String(),
			Title:                draft.Title,
			HashtagsJSON:         encodeHashtags(markdown.ExtractHashtags([]byte(draft.Body))),
			Reference:            draft.Reference,
			Folder:               draft.Folder,
			CreatedAtMillis:      millis(now),
			ModifiedAtMillis:     millis(now),
			ModifiedDevice:       stamp.DeviceID,
			UpdateSequenceNumber: stamp.SequenceNumber,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		content := ContentRecord{
			NoteID:   id.String(),
			Key:      PrimaryContentKey.String(),
			Role:     RolePrimary,
			MIMEType: markdownMIMEType,
			Text:     draft.Body,
		}
		if err := tx.Create(&content).Error; err != nil {
			return err
		}
		if err := d.syncPromptRows(tx, content, stamp); err != nil {
			return err
		}

		note, err := d.assembleNote(tx, record)
		if err != nil {
			return err
		}
		created = note
		return nil
	})
	if err != nil {
		return Note{}, err
	}
	return created, nil
}

// UpdateNote loads the note, applies the caller's transform and persists
// the result in the same transaction. Prompts gaining new indexes get
// fresh scheduling rows; rows for removed prompts are retained so merge
// history survives.
func (d *Database) UpdateNote(ctx context.Context, id NoteID, transform func(Note) NoteDraft) (Note, error) {
	var updated Note
	err := d.write(ctx, opUpdateNote, func(tx *gorm.DB, stamp UpdateIdentifier) error {
		var record NoteRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&record, "id = ? AND deleted = ?", id.String(), false).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return d.fail(opUpdateNote, reasonNotFound, fmt.Errorf("%w: note %s", ErrNotFound, id))
		}
		if err != nil {
			return err
		}

		current, err := d.assembleNote(tx, record)
		if err != nil {
			return err
		}
		draft := transform(current)

		now := d.clock().UTC()
		record.Title = draft.Title
		record.HashtagsJSON = encodeHashtags(markdown.ExtractHashtags([]byte(draft.Body)))
		record.Reference = draft.Reference
		record.Folder = draft.Folder
		record.ModifiedAtMillis = millis(now)
		record.ModifiedDevice = stamp.DeviceID
		record.UpdateSequenceNumber = stamp.SequenceNumber
		if err := tx.Save(&record).Error; err != nil {
			return err
		}

		content := ContentRecord{
			NoteID:   id.String(),
			Key:      PrimaryContentKey.String(),
			Role:     RolePrimary,
			MIMEType: markdownMIMEType,
			Text:     draft.Body,
		}
		if err := tx.Save(&content).Error; err != nil {
			return err
		}
		if err := d.syncPromptRows(tx, content, stamp); err != nil {
			return err
		}

		note, err := d.assembleNote(tx, record)
		if err != nil {
			return err
		}
		updated = note
		return nil
	})
	if err != nil {
		return Note{}, err
	}
	return updated, nil
}

// DeleteNote marks the note deleted. The tombstone propagates through
// merges like any other field; content and prompt rows are retained.
func (d *Database) DeleteNote(ctx context.Context, id NoteID) error {
	return d.write(ctx, opDeleteNote, func(tx *gorm.DB, stamp UpdateIdentifier) error {
		var record NoteRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&record, "id = ? AND deleted = ?", id.String(), false).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return d.fail(opDeleteNote, reasonNotFound, fmt.Errorf("%w: note %s", ErrNotFound, id))
		}
		if err != nil {
			return err
		}

		record.Deleted = true
		record.ModifiedAtMillis = millis(d.clock().UTC())
		record.ModifiedDevice = stamp.DeviceID
		record.UpdateSequenceNumber = stamp.SequenceNumber
		return tx.Save(&record).Error
	})
}

// Note returns the note with the given identifier.
func (d *Database) Note(ctx context.Context, id NoteID) (Note, error) {
	db, err := d.reader(opNote)
	if err != nil {
		return Note{}, err
	}

	var record NoteRecord
	err = db.WithContext(ctx).Take(&record, "id = ? AND deleted = ?", id.String(), false).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, d.fail(opNote, reasonNotFound, fmt.Errorf("%w: note %s", ErrNotFound, id))
	}
	if err != nil {
		return Note{}, d.fail(opNote, reasonQueryFailed, err)
	}
	return d.assembleNote(db.WithContext(ctx), record)
}

// assembleNote builds the read model from the note row plus its content
// rows, decoding each into a prompt collection via the role registry.
func (d *Database) assembleNote(handle *gorm.DB, record NoteRecord) (Note, error) {
	var contents []ContentRecord
	if err := handle.Where("note_id = ?", record.ID).Find(&contents).Error; err != nil {
		return Note{}, d.fail(opNote, reasonQueryFailed, err)
	}

	note := Note{
		ID:         NoteID(record.ID),
		CreatedAt:  timeFromMillis(record.CreatedAtMillis),
		ModifiedAt: timeFromMillis(record.ModifiedAtMillis),
		Hashtags:   decodeHashtags(record.HashtagsJSON),
		Title:      record.Title,
		Reference:  record.Reference,
		Folder:     record.Folder,
		Prompts:    make(map[ContentKey]PromptCollection, len(contents)),
	}
	for _, content := range contents {
		decoder, ok := d.decoders[content.Role]
		if !ok {
			return Note{}, d.fail(opNote, "unknown_role",
				fmt.Errorf("%w: %q", ErrUnknownRole, content.Role))
		}
		collection, err := decoder(content.Text)
		if err != nil {
			return Note{}, d.fail(opNote, "decode_failed", err)
		}
		note.Prompts[ContentKey(content.Key)] = collection
		if content.Key == PrimaryContentKey.String() {
			note.Body = content.Text
		}
	}
	return note, nil
}

// syncPromptRows creates scheduling rows for prompt indexes that do not
// have one yet. Existing rows keep their scheduling state; rows whose
// prompt disappeared from the content are never deleted.
func (d *Database) syncPromptRows(tx *gorm.DB, content ContentRecord, stamp UpdateIdentifier) error {
	decoder, ok := d.decoders[content.Role]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRole, content.Role)
	}
	collection, err := decoder(content.Text)
	if err != nil {
		return err
	}

	var existing []PromptRecord
	if err := tx.Where("note_id = ? AND prompt_key = ?", content.NoteID, content.Key).
		Find(&existing).Error; err != nil {
		return err
	}
	have := make(map[int]struct{}, len(existing))
	for _, record := range existing {
		have[record.PromptIndex] = struct{}{}
	}

	for index := range collection {
		if _, ok := have[index]; ok {
			continue
		}
		record := PromptRecord{
			NoteID:               content.NoteID,
			PromptKey:            content.Key,
			PromptIndex:          index,
			Factor:               defaultPromptFactor,
			ModifiedDevice:       stamp.DeviceID,
			UpdateSequenceNumber: stamp.SequenceNumber,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
	}
	return nil
}

// Search returns the distinct identifiers of notes whose content matches
// the pattern as a prefix query. An empty pattern returns every note
// with content.
func (d *Database) Search(ctx context.Context, pattern string) ([]NoteID, error) {
	db, err := d.reader(opSearch)
	if err != nil {
		return nil, err
	}

	matches, err := database.SearchContent(db.WithContext(ctx), pattern)
	if err != nil {
		return nil, d.fail(opSearch, reasonQueryFailed, err)
	}
	ids := make([]NoteID, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, NoteID(match))
	}
	return ids, nil
}

// StoreAsset persists an opaque binary payload under the given key,
// replacing any previous payload.
func (d *Database) StoreAsset(ctx context.Context, key string, data []byte) error {
	return d.write(ctx, opStoreAsset, func(tx *gorm.DB, _ UpdateIdentifier) error {
		record := AssetRecord{ID: key, Data: data}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error
	})
}

// Asset returns the payload stored under the given key.
func (d *Database) Asset(ctx context.Context, key string) ([]byte, error) {
	db, err := d.reader(opAsset)
	if err != nil {
		return nil, err
	}

	var record AssetRecord
	err = db.WithContext(ctx).Take(&record, "id = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, d.fail(opAsset, reasonNotFound, fmt.Errorf("%w: asset %s", ErrNotFound, key))
	}
	if err != nil {
		return nil, d.fail(opAsset, reasonQueryFailed, err)
	}
	return record.Data, nil
}
