package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/amalashkevich/vanitynamereg/core"
	"github.com/amalashkevich/vanitynamereg/observability"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	sinkName     = "indexer"
	defaultLimit = 100
	maxLimit     = 1000
)

// Indexer persists registry notifications into a relational store so
// per-name history survives beyond the node's in-memory event backlog.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to the configured driver and migrates the schema.
func Open(driver, dsn string, log *slog.Logger) (*Indexer, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	return New(db, log)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: nil database")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{db: db, logger: log.With("component", sinkName)}, nil
}

// Close releases the underlying connection pool.
func (i *Indexer) Close() error {
	if i == nil || i.db == nil {
		return nil
	}
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Handle is an event hook suitable for core.Node.AddEventHook. Failures are
// logged and counted; they never abort the registry operation.
func (i *Indexer) Handle(evt core.NameEvent) {
	err := i.Record(context.Background(), evt)
	observability.Events().RecordDelivery(sinkName, err == nil)
	if err != nil {
		i.logger.Error("index event failed", "sequence", evt.Sequence, "type", evt.Event.Type, "error", err)
	}
}

// Record stores a single notification. Re-recording a known sequence is a
// no-op.
func (i *Indexer) Record(ctx context.Context, evt core.NameEvent) error {
	row := rowFromEvent(evt)
	var existing int64
	if err := i.db.WithContext(ctx).Model(&NameEvent{}).Where("sequence = ?", row.Sequence).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}
	return i.db.WithContext(ctx).Create(&row).Error
}

func rowFromEvent(evt core.NameEvent) NameEvent {
	attrs := evt.Event.Attributes
	row := NameEvent{
		ID:          uuid.New(),
		Sequence:    evt.Sequence,
		Height:      evt.Height,
		Type:        evt.Event.Type,
		Name:        attrs["name"],
		NameHash:    attrs["nameHash"],
		Owner:       attrs["owner"],
		Caller:      attrs["caller"],
		Fingerprint: attrs["fingerprint"],
		Fee:         attrs["fee"],
		Locked:      attrs["locked"],
		Amount:      attrs["amount"],
		Timestamp:   evt.Timestamp,
	}
	if raw := attrs["expiresAt"]; raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			row.ExpiresAt = v
		}
	}
	if raw := attrs["timestamp"]; raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			row.Timestamp = v
		}
	}
	return row
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// History returns notifications that mention name, oldest first.
func (i *Indexer) History(ctx context.Context, name string, limit int) ([]NameEvent, error) {
	var rows []NameEvent
	err := i.db.WithContext(ctx).
		Where("name = ?", name).
		Order("sequence asc").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Since returns notifications with a sequence greater than after, oldest
// first.
func (i *Indexer) Since(ctx context.Context, after uint64, limit int) ([]NameEvent, error) {
	var rows []NameEvent
	err := i.db.WithContext(ctx).
		Where("sequence > ?", after).
		Order("sequence asc").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// LastSequence returns the highest indexed sequence, or zero when empty.
func (i *Indexer) LastSequence(ctx context.Context) (uint64, error) {
	var row NameEvent
	err := i.db.WithContext(ctx).Order("sequence desc").Limit(1).Find(&row).Error
	if err != nil {
		return 0, err
	}
	return row.Sequence, nil
}
