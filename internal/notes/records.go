package notes

// DeviceRecord is one row per participating device. UpdateSequenceNumber
// is the device's local logical clock, incremented once per committed
// write transaction originating on that device. New devices start at -1
// so their first write stamps sequence 0.
type DeviceRecord struct {
	UUID                 string `gorm:"column:uuid;primaryKey;size:64;not null"`
	Name                 string `gorm:"column:name;size:190;not null;default:''"`
	UpdateSequenceNumber int64  `gorm:"column:update_sequence_number;not null;default:-1"`
}

// TableName provides the explicit table binding for GORM.
func (DeviceRecord) TableName() string {
	return "devices"
}

// NoteRecord is the persisted row for a logical note. Deletion is a
// tombstone flag so merges can propagate it like any other field.
type NoteRecord struct {
	ID                   string `gorm:"column:id;primaryKey;size:190;not null"`
	Deleted              bool   `gorm:"column:deleted;not null;default:false"`
	Title                string `gorm:"column:title;type:text;not null;default:''"`
	HashtagsJSON         string `gorm:"column:hashtags_json;type:text;not null;default:'[]'"`
	Reference            string `gorm:"column:reference;type:text;not null;default:''"`
	Folder               string `gorm:"column:folder;size:190;not null;default:''"`
	CreatedAtMillis      int64  `gorm:"column:created_at_ms;not null"`
	ModifiedAtMillis     int64  `gorm:"column:modified_at_ms;not null;index"`
	ModifiedDevice       string `gorm:"column:modified_device;size:64;not null;index:idx_notes_writer,priority:1"`
	UpdateSequenceNumber int64  `gorm:"column:update_sequence_number;not null;index:idx_notes_writer,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (NoteRecord) TableName() string {
	return "notes"
}

// ContentRecord is the persisted text payload for one (note, key) pair.
type ContentRecord struct {
	NoteID   string      `gorm:"column:note_id;primaryKey;size:190;not null"`
	Key      string      `gorm:"column:key;primaryKey;size:190;not null"`
	Role     ContentRole `gorm:"column:role;size:32;not null"`
	MIMEType string      `gorm:"column:mime_type;size:64;not null"`
	Text     string      `gorm:"column:text;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ContentRecord) TableName() string {
	return "contents"
}

// PromptRecord holds scheduling state for one prompt. Due and LastReview
// are both nil for a prompt that has never been reviewed; burying can set
// Due alone. Rows are never physically deleted so merge history survives.
type PromptRecord struct {
	NoteID               string  `gorm:"column:note_id;primaryKey;size:190;not null"`
	PromptKey            string  `gorm:"column:prompt_key;primaryKey;size:190;not null"`
	PromptIndex          int     `gorm:"column:prompt_index;primaryKey;not null"`
	DueMillis            *int64  `gorm:"column:due_ms;index"`
	LastReviewMillis     *int64  `gorm:"column:last_review_ms"`
	IdealIntervalMillis  int64   `gorm:"column:ideal_interval_ms;not null;default:0"`
	ReviewCount          int64   `gorm:"column:review_count;not null;default:0"`
	LapseCount           int64   `gorm:"column:lapse_count;not null;default:0"`
	Factor               float64 `gorm:"column:factor;not null;default:2.5"`
	TotalCorrect         int64   `gorm:"column:total_correct;not null;default:0"`
	TotalIncorrect       int64   `gorm:"column:total_incorrect;not null;default:0"`
	ModifiedDevice       string  `gorm:"column:modified_device;size:64;not null;index:idx_prompts_writer,priority:1"`
	UpdateSequenceNumber int64   `gorm:"column:update_sequence_number;not null;index:idx_prompts_writer,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (PromptRecord) TableName() string {
	return "prompts"
}

// Identifier returns the prompt's natural key.
func (record PromptRecord) Identifier() PromptIdentifier {
	return PromptIdentifier{
		NoteID: NoteID(record.NoteID),
		Key:    ContentKey(record.PromptKey),
		Index:  record.PromptIndex,
	}
}

// StudyLogEntryRecord is an append-only record of one answer. Rows are
// never mutated after insert.
type StudyLogEntryRecord struct {
	ID              int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TimestampMillis int64  `gorm:"column:timestamp_ms;not null;index"`
	Correct         int64  `gorm:"column:correct;not null"`
	Incorrect       int64  `gorm:"column:incorrect;not null"`
	NoteID          string `gorm:"column:note_id;size:190;not null"`
	PromptKey       string `gorm:"column:prompt_key;size:190;not null"`
	PromptIndex     int    `gorm:"column:prompt_index;not null"`
}

// TableName provides the explicit table binding for GORM.
func (StudyLogEntryRecord) TableName() string {
	return "study_log_entries"
}

// AssetRecord stores an opaque binary payload under a caller-chosen key.
type AssetRecord struct {
	ID   string `gorm:"column:id;primaryKey;size:190;not null"`
	Data []byte `gorm:"column:data;not null"`
}

// TableName provides the explicit table binding for GORM.
func (AssetRecord) TableName() string {
	return "assets"
}

// StoreModels lists every record type whose table the store maintains.
func StoreModels() []any {
	return []any{
		&DeviceRecord{},
		&NoteRecord{},
		&ContentRecord{},
		&PromptRecord{},
		&StudyLogEntryRecord{},
		&AssetRecord{},
	}
}
