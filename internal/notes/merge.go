package notes

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/karstlabs/commonplace/internal/database"
)

// Merge applies every row from source that this replica has not yet
// observed, resolving key collisions by whole-row last-writer-wins over
// update identifiers, then unions the device tables. The merge is
// idempotent and its net effect is order-independent.
func (d *Database) Merge(ctx context.Context, source *Database) (MergeResult, error) {
	if source == nil {
		return MergeResult{}, d.fail(opMerge, "missing_source", ErrMergeUnavailable)
	}
	sourceHandle, err := source.reader(opMerge)
	if err != nil {
		return MergeResult{}, d.fail(opMerge, "source_not_open", ErrMergeUnavailable)
	}
	return d.mergeReplica(ctx, opMerge, sourceHandle)
}

// mergeReplica merges the rows readable through sourceHandle into this
// replica inside one write transaction. No partial merge is ever
// committed.
func (d *Database) mergeReplica(ctx context.Context, operation string, sourceHandle *gorm.DB) (MergeResult, error) {
	d.mu.Lock()
	if d.state != StateOpen && d.state != StateConflict {
		d.mu.Unlock()
		return MergeResult{}, d.fail(operation, reasonNotOpen, ErrMergeUnavailable)
	}
	if d.readOnly {
		d.mu.Unlock()
		return MergeResult{}, d.fail(operation, reasonNotWritable, ErrNotWritable)
	}

	var sourceDevices []DeviceRecord
	if err := sourceHandle.WithContext(ctx).Find(&sourceDevices).Error; err != nil {
		d.mu.Unlock()
		return MergeResult{}, d.fail(operation, "source_read_failed", err)
	}
	var sourceNotes []NoteRecord
	if err := sourceHandle.WithContext(ctx).Find(&sourceNotes).Error; err != nil {
		d.mu.Unlock()
		return MergeResult{}, d.fail(operation, "source_read_failed", err)
	}
	var sourcePrompts []PromptRecord
	if err := sourceHandle.WithContext(ctx).Find(&sourcePrompts).Error; err != nil {
		d.mu.Unlock()
		return MergeResult{}, d.fail(operation, "source_read_failed", err)
	}

	result := MergeResult{}
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		knowledge, err := knowledgeVector(tx)
		if err != nil {
			return err
		}

		for _, note := range sourceNotes {
			applied, err := mergeNoteRow(tx, sourceHandle.WithContext(ctx), note, knowledge)
			if err != nil {
				return err
			}
			if applied {
				result.Notes++
			}
		}

		for _, prompt := range sourcePrompts {
			applied, err := mergePromptRow(tx, prompt, knowledge)
			if err != nil {
				return err
			}
			if applied {
				result.Prompts++
			}
		}

		return unionDevices(tx, sourceDevices)
	})
	if err != nil {
		d.mu.Unlock()
		return MergeResult{}, d.fail(operation, reasonTxFailed, err)
	}

	if err := d.refreshMetadataLocked(ctx); err != nil {
		d.logger.Warn("metadata cache refresh failed after merge", zap.Error(err))
	}
	observers := make([]func(), 0, len(d.subscribers))
	for _, fn := range d.subscribers {
		observers = append(observers, fn)
	}
	d.mu.Unlock()

	for _, notify := range observers {
		notify()
	}
	return result, nil
}

// knowledgeVector reads the destination's device table as a version
// vector: what this replica already knows about every writer.
func knowledgeVector(tx *gorm.DB) (VersionVector, error) {
	var devices []DeviceRecord
	if err := tx.Find(&devices).Error; err != nil {
		return nil, err
	}
	vector := make(VersionVector, len(devices))
	for _, device := range devices {
		vector[device.UUID] = device.UpdateSequenceNumber
	}
	return vector, nil
}

// mergeNoteRow applies one unseen source note row. When the row wins,
// its content rows travel with it so every prompt collection keeps a
// matching content record.
func mergeNoteRow(tx *gorm.DB, sourceHandle *gorm.DB, note NoteRecord, knowledge VersionVector) (bool, error) {
	if note.UpdateSequenceNumber <= knowledge.SequenceFor(note.ModifiedDevice) {
		return false, nil
	}

	var existing NoteRecord
	err := tx.Take(&existing, "id = ?", note.ID).Error
	if err == nil {
		local := UpdateIdentifier{DeviceID: existing.ModifiedDevice, SequenceNumber: existing.UpdateSequenceNumber}
		remote := UpdateIdentifier{DeviceID: note.ModifiedDevice, SequenceNumber: note.UpdateSequenceNumber}
		if !remote.After(local) {
			return false, nil
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	if err := tx.Save(&note).Error; err != nil {
		return false, err
	}

	var contents []ContentRecord
	if err := sourceHandle.Where("note_id = ?", note.ID).Find(&contents).Error; err != nil {
		return false, err
	}
	if err := tx.Where("note_id = ?", note.ID).Delete(&ContentRecord{}).Error; err != nil {
		return false, err
	}
	if len(contents) > 0 {
		if err := tx.Create(&contents).Error; err != nil {
			return false, err
		}
	}
	return true, nil
}

func mergePromptRow(tx *gorm.DB, prompt PromptRecord, knowledge VersionVector) (bool, error) {
	if prompt.UpdateSequenceNumber <= knowledge.SequenceFor(prompt.ModifiedDevice) {
		return false, nil
	}

	var existing PromptRecord
	err := tx.Take(&existing, "note_id = ? AND prompt_key = ? AND prompt_index = ?",
		prompt.NoteID, prompt.PromptKey, prompt.PromptIndex).Error
	if err == nil {
		local := UpdateIdentifier{DeviceID: existing.ModifiedDevice, SequenceNumber: existing.UpdateSequenceNumber}
		remote := UpdateIdentifier{DeviceID: prompt.ModifiedDevice, SequenceNumber: prompt.UpdateSequenceNumber}
		if !remote.After(local) {
			return false, nil
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	if err := tx.Save(&prompt).Error; err != nil {
		return false, err
	}
	return true, nil
}

// unionDevices forces every device row to the maximum sequence number
// either replica has recorded.
func unionDevices(tx *gorm.DB, sourceDevices []DeviceRecord) error {
	for _, source := range sourceDevices {
		var existing DeviceRecord
		err := tx.Take(&existing, "uuid = ?", source.UUID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := tx.Create(&source).Error; err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if source.UpdateSequenceNumber > existing.UpdateSequenceNumber {
			existing.UpdateSequenceNumber = source.UpdateSequenceNumber
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// ResolveConflicts merges every concurrent on-disk version reported by
// the replica source into the open store, discarding each version after
// a successful merge. Resolution is best-effort: a failed candidate is
// logged and left on disk for the next open to retry.
func (d *Database) ResolveConflicts(ctx context.Context) (MergeResult, error) {
	if d.replicas == nil {
		return MergeResult{}, nil
	}

	d.mu.Lock()
	if d.state != StateOpen {
		d.mu.Unlock()
		return MergeResult{}, d.fail(opResolveConflicts, reasonNotOpen, ErrNotOpen)
	}
	d.state = StateConflict
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		if d.state == StateConflict {
			d.state = StateOpen
		}
		d.mu.Unlock()
	}()

	paths, err := d.replicas.List()
	if err != nil {
		return MergeResult{}, d.fail(opResolveConflicts, "replica_list_failed", err)
	}

	total := MergeResult{}
	for _, path := range paths {
		replica, err := database.OpenReplica(path)
		if err != nil {
			d.logger.Error("conflict replica open failed",
				zap.String("path", path), zap.Error(err))
			continue
		}
		result, mergeErr := d.mergeReplica(ctx, opResolveConflicts, replica)
		if closeErr := database.Close(replica); closeErr != nil {
			d.logger.Warn("conflict replica close failed",
				zap.String("path", path), zap.Error(closeErr))
		}
		if mergeErr != nil {
			d.logger.Error("conflict replica merge failed",
				zap.String("path", path), zap.Error(mergeErr))
			continue
		}
		if err := d.replicas.Discard(path); err != nil {
			d.logger.Warn("conflict replica discard failed",
				zap.String("path", path), zap.Error(err))
		}
		total = total.Combine(result)
	}
	return total, nil
}
