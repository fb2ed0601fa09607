package database

import (
	"strings"

	"gorm.io/gorm"
)

// The content index is an external-content FTS5 table mirroring
// contents.text, kept synchronized by triggers on every content write.
const contentIndexTable = "content_index"

var contentIndexDDL = []string{
	`CREATE VIRTUAL TABLE IF NOT EXISTS content_index USING fts5(text, content='contents', content_rowid='rowid')`,
	`CREATE TRIGGER IF NOT EXISTS contents_index_insert AFTER INSERT ON contents BEGIN
		INSERT INTO content_index(rowid, text) VALUES (new.rowid, new.text);
	END`,
	`CREATE TRIGGER IF NOT EXISTS contents_index_delete AFTER DELETE ON contents BEGIN
		INSERT INTO content_index(content_index, rowid, text) VALUES ('delete', old.rowid, old.text);
	END`,
	`CREATE TRIGGER IF NOT EXISTS contents_index_update AFTER UPDATE ON contents BEGIN
		INSERT INTO content_index(content_index, rowid, text) VALUES ('delete', old.rowid, old.text);
		INSERT INTO content_index(rowid, text) VALUES (new.rowid, new.text);
	END`,
}

func createContentIndex(db *gorm.DB) error {
	for _, statement := range contentIndexDDL {
		if err := db.Exec(statement).Error; err != nil {
			return err
		}
	}
	return nil
}

// CheckContentIndex runs the FTS5 integrity probe against the content
// table. A non-nil error means the index no longer matches the content
// rows and must be rebuilt.
func CheckContentIndex(db *gorm.DB) error {
	return db.Exec(`INSERT INTO content_index(content_index, rank) VALUES ('integrity-check', 1)`).Error
}

// RebuildContentIndex reconstructs the index from the current content
// rows.
func RebuildContentIndex(db *gorm.DB) error {
	return db.Exec(`INSERT INTO content_index(content_index) VALUES ('rebuild')`).Error
}

// SearchContent returns the distinct note identifiers whose content
// matches the pattern as a prefix query. An empty pattern returns every
// note identifier that has content.
func SearchContent(db *gorm.DB, pattern string) ([]string, error) {
	trimmed := strings.TrimSpace(pattern)

	var noteIDs []string
	if trimmed == "" {
		err := db.Raw(`SELECT DISTINCT note_id FROM contents`).Scan(&noteIDs).Error
		return noteIDs, err
	}

	query := prefixQuery(trimmed)
	err := db.Raw(
		`SELECT DISTINCT note_id FROM contents WHERE rowid IN (SELECT rowid FROM content_index WHERE content_index MATCH ?)`,
		query,
	).Scan(&noteIDs).Error
	return noteIDs, err
}

// prefixQuery quotes the raw pattern as a single FTS5 phrase and appends
// the prefix wildcard.
func prefixQuery(pattern string) string {
	escaped := strings.ReplaceAll(pattern, `"`, `""`)
	return `"` + escaped + `"*`
}
