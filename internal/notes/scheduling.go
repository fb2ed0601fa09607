package notes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/karstlabs/commonplace/internal/scheduler"
)

const defaultPromptFactor = scheduler.DefaultFactor

// buryWindow is how far sibling prompts are deferred after an answer.
const buryWindow = 24 * time.Hour

// StudyAnswer reports one answered prompt.
type StudyAnswer struct {
	Prompt    PromptIdentifier
	Correct   int64
	Incorrect int64
	At        time.Time
}

// Prompt returns the scheduling row for one prompt identifier.
func (d *Database) Prompt(ctx context.Context, id PromptIdentifier) (PromptRecord, error) {
	db, err := d.reader(opPrompt)
	if err != nil {
		return PromptRecord{}, err
	}

	var record PromptRecord
	err = db.WithContext(ctx).
		Take(&record, "note_id = ? AND prompt_key = ? AND prompt_index = ?",
			id.NoteID.String(), id.Key.String(), id.Index).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PromptRecord{}, d.fail(opPrompt, reasonNotFound, fmt.Errorf("%w: prompt %s", ErrNotFound, id))
	}
	if err != nil {
		return PromptRecord{}, d.fail(opPrompt, reasonQueryFailed, err)
	}
	return record, nil
}

// RecordAnswer appends a study-log entry, reschedules the answered
// prompt and, when buryRelated is set, defers its sibling prompts. The
// whole update carries a single update identifier.
func (d *Database) RecordAnswer(ctx context.Context, answer StudyAnswer, buryRelated bool) (PromptRecord, error) {
	answeredAt := answer.At
	if answeredAt.IsZero() {
		answeredAt = d.clock()
	}
	answeredAt = answeredAt.UTC()

	var updated PromptRecord
	err := d.write(ctx, opRecordAnswer, func(tx *gorm.DB, stamp UpdateIdentifier) error {
		var record PromptRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&record, "note_id = ? AND prompt_key = ? AND prompt_index = ?",
				answer.Prompt.NoteID.String(), answer.Prompt.Key.String(), answer.Prompt.Index).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return d.fail(opRecordAnswer, reasonNotFound, fmt.Errorf("%w: prompt %s", ErrNotFound, answer.Prompt))
		}
		if err != nil {
			return err
		}

		logEntry := StudyLogEntryRecord{
			TimestampMillis: millis(answeredAt),
			Correct:         answer.Correct,
			Incorrect:       answer.Incorrect,
			NoteID:          record.NoteID,
			PromptKey:       record.PromptKey,
			PromptIndex:     record.PromptIndex,
		}
		if err := tx.Create(&logEntry).Error; err != nil {
			return err
		}

		item := itemFromRecord(record)
		outcomes := scheduler.Schedule(item, answerDelay(record, answeredAt))
		next := outcomes[outcomeForTally(answer.Correct, answer.Incorrect)]

		due := millis(answeredAt.Add(scheduler.Fuzz(next.Interval, d.random)))
		lastReview := millis(answeredAt)
		record.DueMillis = &due
		record.LastReviewMillis = &lastReview
		record.IdealIntervalMillis = next.Interval.Milliseconds()
		record.ReviewCount = next.ReviewCount
		record.LapseCount = next.LapseCount
		record.Factor = next.Factor
		record.TotalCorrect += answer.Correct
		record.TotalIncorrect += answer.Incorrect
		record.ModifiedDevice = stamp.DeviceID
		record.UpdateSequenceNumber = stamp.SequenceNumber
		if err := tx.Save(&record).Error; err != nil {
			return err
		}

		if buryRelated {
			if err := burySiblings(tx, record, answeredAt, stamp); err != nil {
				return err
			}
		}
		updated = record
		return nil
	})
	if err != nil {
		return PromptRecord{}, err
	}
	return updated, nil
}

// itemFromRecord translates stored scheduling state into the scheduler's
// input. A prompt with no review history is synthesized as about to
// graduate from learning so brand-new prompts surface once, shortly
// after creation, rather than immediately re-entering the queue.
func itemFromRecord(record PromptRecord) scheduler.Item {
	factor := record.Factor
	if factor < scheduler.MinimumFactor {
		factor = scheduler.DefaultFactor
	}
	if record.DueMillis != nil && record.LastReviewMillis != nil {
		return scheduler.Item{
			State:       scheduler.StateReview,
			Interval:    time.Duration(*record.DueMillis-*record.LastReviewMillis) * time.Millisecond,
			ReviewCount: record.ReviewCount,
			LapseCount:  record.LapseCount,
			Factor:      factor,
		}
	}
	item := scheduler.NewItem()
	item.ReviewCount = record.ReviewCount
	item.LapseCount = record.LapseCount
	item.Factor = factor
	return item
}

// answerDelay measures how overdue the answer was relative to the ideal
// interval, so early and late reviews adjust the next interval.
func answerDelay(record PromptRecord, answeredAt time.Time) time.Duration {
	if record.LastReviewMillis == nil {
		return 0
	}
	ideal := timeFromMillis(*record.LastReviewMillis + record.IdealIntervalMillis)
	delay := answeredAt.Sub(ideal)
	if delay < 0 {
		return 0
	}
	return delay
}

// outcomeForTally maps a raw correct/incorrect tally onto the coarse
// scheduler outcome.
func outcomeForTally(correct, incorrect int64) scheduler.Outcome {
	switch {
	case correct > 0 && incorrect == 0:
		return scheduler.OutcomeGood
	case correct > 0 && incorrect == 1:
		return scheduler.OutcomeHard
	default:
		return scheduler.OutcomeAgain
	}
}

// burySiblings pushes every other prompt in the same (note, key) group
// to one day past the answer unless it is already due later, in one
// bulk update stamped with the caller's identifier.
func burySiblings(tx *gorm.DB, record PromptRecord, answeredAt time.Time, stamp UpdateIdentifier) error {
	buriedDue := millis(answeredAt.Add(buryWindow))
	return tx.Model(&PromptRecord{}).
		Where("note_id = ? AND prompt_key = ? AND prompt_index <> ?",
			record.NoteID, record.PromptKey, record.PromptIndex).
		Where("due_ms IS NULL OR due_ms < ?", buriedDue).
		Updates(map[string]any{
			"due_ms":                 buriedDue,
			"modified_device":        stamp.DeviceID,
			"update_sequence_number": stamp.SequenceNumber,
		}).Error
}

// StudyLog returns the append-only answer history in timestamp order.
func (d *Database) StudyLog(ctx context.Context) ([]StudyLogEntryRecord, error) {
	db, err := d.reader(opStudyLog)
	if err != nil {
		return nil, err
	}

	var entries []StudyLogEntryRecord
	if err := db.WithContext(ctx).Order("timestamp_ms ASC, id ASC").Find(&entries).Error; err != nil {
		return nil, d.fail(opStudyLog, reasonQueryFailed, err)
	}
	return entries, nil
}
