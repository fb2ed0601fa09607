package notes

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/karstlabs/commonplace/internal/database"
)

var noOpLogger = zap.NewNop()

// State names the lifecycle phase of a Database.
type State string

const (
	StateClosed  State = "closed"
	StateOpening State = "opening"
	StateOpen    State = "open"
	// StateConflict is the sub-state, reachable only while open, during
	// which concurrent on-disk versions are being merged away.
	StateConflict State = "conflict"
)

const (
	opOpen             = "notes.open"
	opClose            = "notes.close"
	opCreateNote       = "notes.create_note"
	opUpdateNote       = "notes.update_note"
	opDeleteNote       = "notes.delete_note"
	opNote             = "notes.note"
	opSearch           = "notes.search"
	opPrompt           = "notes.prompt"
	opRecordAnswer     = "notes.record_answer"
	opEligiblePrompts  = "notes.eligible_prompts"
	opStudySession     = "notes.study_session"
	opStoreAsset       = "notes.store_asset"
	opAsset            = "notes.asset"
	opMerge            = "notes.merge"
	opResolveConflicts = "notes.resolve_conflicts"
	opStudyLog         = "notes.study_log"

	reasonNotOpen     = "not_open"
	reasonNotWritable = "not_writable"
	reasonNotFound    = "not_found"
	reasonNoIdentity  = "no_identity"
	reasonQueryFailed = "query_failed"
	reasonTxFailed    = "transaction_failed"
)

// DeviceIdentity supplies the stable identifier and display name of the
// device this process runs on. It is injected so tests and hosts stay in
// control of identity.
type DeviceIdentity interface {
	DeviceID() string
	DeviceName() string
}

// IDProvider issues identifiers for new notes.
type IDProvider interface {
	NewID() (string, error)
}

// Config describes how to construct a Database.
type Config struct {
	// Path is the SQLite store path.
	Path string
	// Identity is required: without it no update identifier can be stamped.
	Identity DeviceIdentity
	// IDProvider defaults to a UUIDv7 provider.
	IDProvider IDProvider
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Replicas optionally reports concurrent on-disk versions to merge.
	Replicas database.ReplicaSource
	// Random drives interval fuzzing; defaults to math/rand. Inject a
	// deterministic source in tests.
	Random func() float64
	// ReadOnly rejects every mutating operation with ErrNotWritable.
	ReadOnly bool
}

// Database is the facade over the persisted note store: lifecycle,
// CRUD, scheduling, study-session assembly, search and merge.
type Database struct {
	mu            sync.RWMutex
	state         State
	db            *gorm.DB
	path          string
	identity      DeviceIdentity
	idProvider    IDProvider
	clock         func() time.Time
	logger        *zap.Logger
	replicas      database.ReplicaSource
	random        func() float64
	readOnly      bool
	decoders      map[ContentRole]PromptDecoder
	metadata      map[NoteID]NoteMetadataRecord
	subscribers   map[int64]func()
	subscriberSeq int64
}

// NewDatabase constructs a closed Database. Call Open before use.
func NewDatabase(cfg Config) *Database {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	random := cfg.Random
	if random == nil {
		random = rand.Float64
	}

	return &Database{
		state:       StateClosed,
		path:        cfg.Path,
		identity:    cfg.Identity,
		idProvider:  idProvider,
		clock:       clock,
		logger:      logger,
		replicas:    cfg.Replicas,
		random:      random,
		readOnly:    cfg.ReadOnly,
		decoders:    defaultDecoders(),
		metadata:    make(map[NoteID]NoteMetadataRecord),
		subscribers: make(map[int64]func()),
	}
}

// State returns the current lifecycle state.
func (d *Database) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Open loads or initializes the persisted store, applies pending
// migrations, repairs the content index if its integrity probe fails,
// establishes this device's record and builds the metadata cache.
func (d *Database) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateClosed {
		return newDatabaseError(opOpen, "already_open", nil)
	}
	if d.identity == nil || d.identity.DeviceID() == "" {
		return d.fail(opOpen, reasonNoIdentity, ErrNoIdentity)
	}

	d.state = StateOpening
	db, err := database.Open(database.Config{
		Path:   d.path,
		Models: StoreModels(),
		Logger: d.logger,
	})
	if err != nil {
		d.state = StateClosed
		return d.fail(opOpen, "store_open_failed", err)
	}

	if err := d.ensureDevice(ctx, db); err != nil {
		_ = database.Close(db)
		d.state = StateClosed
		return d.fail(opOpen, "device_setup_failed", err)
	}

	d.db = db
	if err := d.refreshMetadataLocked(ctx); err != nil {
		_ = database.Close(db)
		d.db = nil
		d.state = StateClosed
		return d.fail(opOpen, "metadata_load_failed", err)
	}

	d.state = StateOpen
	d.logger.Info("note database opened",
		zap.String("path", d.path),
		zap.String("device_id", d.identity.DeviceID()))
	return nil
}

// ensureDevice creates this device's row with sequence -1 when absent so
// the first real write yields sequence 0.
func (d *Database) ensureDevice(ctx context.Context, db *gorm.DB) error {
	deviceID := d.identity.DeviceID()
	var record DeviceRecord
	err := db.WithContext(ctx).Take(&record, "uuid = ?", deviceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.WithContext(ctx).Create(&DeviceRecord{
			UUID:                 deviceID,
			Name:                 d.identity.DeviceName(),
			UpdateSequenceNumber: -1,
		}).Error
	}
	if err != nil {
		return err
	}
	if name := d.identity.DeviceName(); name != "" && name != record.Name {
		record.Name = name
		return db.WithContext(ctx).Save(&record).Error
	}
	return nil
}

// Close cancels subscriptions, releases the store handle and discards
// all cached state. Only persisted state survives a close.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateClosed {
		return nil
	}
	err := database.Close(d.db)
	d.db = nil
	d.metadata = make(map[NoteID]NoteMetadataRecord)
	d.subscribers = make(map[int64]func())
	d.state = StateClosed
	if err != nil {
		return d.fail(opClose, "store_close_failed", err)
	}
	return nil
}

// Subscription is a revocable handle on a change registration. The
// database never inspects its subscribers; cancellation is the caller's
// responsibility.
type Subscription struct {
	cancel func()
}

// Cancel revokes the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Subscribe registers a callback invoked after every committed mutation,
// once the metadata cache reflects the new state.
func (d *Database) Subscribe(fn func()) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.subscriberSeq++
	id := d.subscriberSeq
	d.subscribers[id] = fn
	return &Subscription{cancel: func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.subscribers, id)
	}}
}

// reader returns the store handle for a snapshot read.
func (d *Database) reader(operation string) (*gorm.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.state != StateOpen && d.state != StateConflict {
		return nil, d.fail(operation, reasonNotOpen, ErrNotOpen)
	}
	return d.db, nil
}

// write runs mutate inside one write transaction that also stamps an
// update identifier, then refreshes the metadata cache and notifies
// subscribers. Every mutating operation funnels through here, which is
// what keeps sequence numbers gapless under concurrent callers.
func (d *Database) write(ctx context.Context, operation string, mutate func(tx *gorm.DB, stamp UpdateIdentifier) error) error {
	d.mu.Lock()
	if d.state != StateOpen && d.state != StateConflict {
		d.mu.Unlock()
		return d.fail(operation, reasonNotOpen, ErrNotOpen)
	}
	if d.readOnly {
		d.mu.Unlock()
		return d.fail(operation, reasonNotWritable, ErrNotWritable)
	}

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stamp, err := d.updateIdentifier(tx)
		if err != nil {
			return err
		}
		return mutate(tx, stamp)
	})
	if err != nil {
		d.mu.Unlock()
		var databaseErr *DatabaseError
		if errors.As(err, &databaseErr) {
			return err
		}
		return d.fail(operation, reasonTxFailed, err)
	}

	if err := d.refreshMetadataLocked(ctx); err != nil {
		d.logger.Warn("metadata cache refresh failed",
			zap.String("operation", operation), zap.Error(err))
	}
	observers := make([]func(), 0, len(d.subscribers))
	for _, fn := range d.subscribers {
		observers = append(observers, fn)
	}
	d.mu.Unlock()

	for _, notify := range observers {
		notify()
	}
	return nil
}

// updateIdentifier atomically increments and persists this device's
// sequence number inside the caller's transaction. It is the single path
// by which any mutation obtains a write stamp.
func (d *Database) updateIdentifier(tx *gorm.DB) (UpdateIdentifier, error) {
	deviceID := d.identity.DeviceID()
	var record DeviceRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Take(&record, "uuid = ?", deviceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return UpdateIdentifier{}, d.fail(opOpen, reasonNoIdentity, ErrNoIdentity)
	}
	if err != nil {
		return UpdateIdentifier{}, err
	}

	record.UpdateSequenceNumber++
	if err := tx.Save(&record).Error; err != nil {
		return UpdateIdentifier{}, err
	}
	return UpdateIdentifier{
		DeviceID:       record.UUID,
		SequenceNumber: record.UpdateSequenceNumber,
	}, nil
}

func (d *Database) fail(operation, reason string, err error, fields ...zap.Field) error {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	d.logger.Error("note database error", attrs...)
	return newDatabaseError(operation, reason, err)
}
