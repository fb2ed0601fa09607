package notes

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

type staticIdentity struct {
	id   string
	name string
}

func (i staticIdentity) DeviceID() string {
	return i.id
}

func (i staticIdentity) DeviceName() string {
	return i.name
}

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

// manualClock lets tests drive time explicitly.
type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time {
	return c.now
}

func (c *manualClock) Advance(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}

var testEpoch = time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)

// newTestDatabase opens a database with deterministic identity, ids,
// clock and fuzz (0.5 makes Fuzz the identity function).
func newTestDatabase(t *testing.T, ids []string) (*Database, *manualClock) {
	t.Helper()
	clock := &manualClock{now: testEpoch}
	db := NewDatabase(Config{
		Path:       filepath.Join(t.TempDir(), "notes.db"),
		Identity:   staticIdentity{id: "device-1", name: "laptop"},
		IDProvider: &staticIDGenerator{ids: ids},
		Clock:      clock.Now,
		Random:     func() float64 { return 0.5 },
	})
	if err := db.Open(context.Background()); err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, clock
}

func mustCreateNote(t *testing.T, db *Database, draft NoteDraft) Note {
	t.Helper()
	note, err := db.CreateNote(context.Background(), draft)
	if err != nil {
		t.Fatalf("failed to create note: %v", err)
	}
	return note
}
