package notes

import (
	"context"
	"encoding/json"
	"sort"
)

// refreshMetadataLocked rebuilds the in-memory metadata projection from
// the persisted note table. Callers must hold the write lock: the cache
// has a single writer, the facade itself.
func (d *Database) refreshMetadataLocked(ctx context.Context) error {
	var records []NoteRecord
	if err := d.db.WithContext(ctx).Where("deleted = ?", false).Find(&records).Error; err != nil {
		return err
	}

	metadata := make(map[NoteID]NoteMetadataRecord, len(records))
	for _, record := range records {
		projection := metadataFromRecord(record)
		metadata[projection.ID] = projection
	}
	d.metadata = metadata
	return nil
}

func metadataFromRecord(record NoteRecord) NoteMetadataRecord {
	return NoteMetadataRecord{
		ID:           NoteID(record.ID),
		Title:        record.Title,
		Hashtags:     decodeHashtags(record.HashtagsJSON),
		HasReference: record.Reference != "",
		Folder:       record.Folder,
		ModifiedAt:   timeFromMillis(record.ModifiedAtMillis),
	}
}

func decodeHashtags(encoded string) []string {
	if encoded == "" {
		return nil
	}
	var hashtags []string
	if err := json.Unmarshal([]byte(encoded), &hashtags); err != nil {
		return nil
	}
	return hashtags
}

func encodeHashtags(hashtags []string) string {
	if len(hashtags) == 0 {
		return "[]"
	}
	encoded, err := json.Marshal(hashtags)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

// Metadata returns a snapshot of the metadata cache. The snapshot is
// safe to read from any goroutine; it never reflects uncommitted writes.
func (d *Database) Metadata() map[NoteID]NoteMetadataRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snapshot := make(map[NoteID]NoteMetadataRecord, len(d.metadata))
	for id, record := range d.metadata {
		snapshot[id] = record
	}
	return snapshot
}

// Hashtags returns the distinct hashtags across all non-deleted notes,
// sorted alphabetically.
func (d *Database) Hashtags() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]struct{})
	var hashtags []string
	for _, record := range d.metadata {
		for _, tag := range record.Hashtags {
			if _, duplicate := seen[tag]; duplicate {
				continue
			}
			seen[tag] = struct{}{}
			hashtags = append(hashtags, tag)
		}
	}
	sort.Strings(hashtags)
	return hashtags
}

// Folders returns the distinct non-empty folder classifications across
// all non-deleted notes, sorted alphabetically.
func (d *Database) Folders() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]struct{})
	var folders []string
	for _, record := range d.metadata {
		if record.Folder == "" {
			continue
		}
		if _, duplicate := seen[record.Folder]; duplicate {
			continue
		}
		seen[record.Folder] = struct{}{}
		folders = append(folders, record.Folder)
	}
	sort.Strings(folders)
	return folders
}
