package notes

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrInvalidContentKey indicates that a content key is empty or exceeds storage bounds.
	ErrInvalidContentKey = errors.New("notes: invalid content key")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// ContentKey addresses one content payload within a note.
type ContentKey string

// NewContentKey validates raw input and returns a ContentKey.
func NewContentKey(rawInput string) (ContentKey, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidContentKey)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidContentKey, maxIdentifierLength)
	}
	return ContentKey(trimmed), nil
}

// String returns the underlying string key.
func (key ContentKey) String() string {
	return string(key)
}

// PrimaryContentKey is the content key carrying a note's body text.
const PrimaryContentKey ContentKey = "body"

// ContentRole selects the decoder for a stored content payload.
type ContentRole string

const (
	// RolePrimary is studiable body text: prompts are extracted from it.
	RolePrimary ContentRole = "primary"
	// RoleReference is supporting material that is never studied.
	RoleReference ContentRole = "reference"
)

// PromptKind discriminates the supported prompt shapes.
type PromptKind string

const (
	PromptKindCloze PromptKind = "cloze"
	PromptKindQA    PromptKind = "qa"
)

// Prompt is one reviewable item extracted from note content.
type Prompt struct {
	Kind     PromptKind
	Question string
	Answer   string
	Context  string
}

// PromptCollection is the ordered sequence of prompts extracted from one
// content payload.
type PromptCollection []Prompt

// PromptIdentifier addresses a single prompt within a note.
type PromptIdentifier struct {
	NoteID NoteID
	Key    ContentKey
	Index  int
}

// String renders the identifier for logs and CLI output.
func (id PromptIdentifier) String() string {
	return fmt.Sprintf("%s/%s/%d", id.NoteID, id.Key, id.Index)
}

// Note is the immutable read model of a logical document. Instances are
// replaced wholesale on update, never mutated in place.
type Note struct {
	ID         NoteID
	CreatedAt  time.Time
	ModifiedAt time.Time
	Hashtags   []string
	Title      string
	Body       string
	Reference  string
	Folder     string
	Prompts    map[ContentKey]PromptCollection
}

// Equal compares two notes, ignoring sub-millisecond timestamp noise and
// comparing prompt collections by key set only.
func (n Note) Equal(other Note) bool {
	if n.ID != other.ID ||
		n.Title != other.Title ||
		n.Body != other.Body ||
		n.Reference != other.Reference ||
		n.Folder != other.Folder {
		return false
	}
	if !n.CreatedAt.Truncate(time.Millisecond).Equal(other.CreatedAt.Truncate(time.Millisecond)) {
		return false
	}
	if !n.ModifiedAt.Truncate(time.Millisecond).Equal(other.ModifiedAt.Truncate(time.Millisecond)) {
		return false
	}
	if len(n.Hashtags) != len(other.Hashtags) {
		return false
	}
	for i, tag := range n.Hashtags {
		if other.Hashtags[i] != tag {
			return false
		}
	}
	if len(n.Prompts) != len(other.Prompts) {
		return false
	}
	for key := range n.Prompts {
		if _, ok := other.Prompts[key]; !ok {
			return false
		}
	}
	return true
}

// NoteDraft carries the caller-supplied fields for a create or update.
type NoteDraft struct {
	Title     string
	Body      string
	Reference string
	Folder    string
}

// NoteMetadataRecord is the in-memory projection of a note used by list
// views and study filters. It is a cache derived from the persisted
// tables, never a source of truth.
type NoteMetadataRecord struct {
	ID           NoteID
	Title        string
	Hashtags     []string
	HasReference bool
	Folder       string
	ModifiedAt   time.Time
}

// MergeResult counts the rows applied by a merge, per record type. It is
// associative and commutative under Combine so nested merges can report
// a single total.
type MergeResult struct {
	Notes   int
	Prompts int
}

// Combine folds another result into this one.
func (r MergeResult) Combine(other MergeResult) MergeResult {
	return MergeResult{
		Notes:   r.Notes + other.Notes,
		Prompts: r.Prompts + other.Prompts,
	}
}

// Empty reports whether the merge applied no rows.
func (r MergeResult) Empty() bool {
	return r.Notes == 0 && r.Prompts == 0
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func timeFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
