package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"liquidityhub/core/events"
	"liquidityhub/native/liquidity"
)

// Store persists ledger records in a SQL database through gorm. It implements
// liquidity.State.
type Store struct {
	db *gorm.DB
	// mu orders journal appends from different assets so sequence numbers
	// stay gapless.
	mu  sync.Mutex
	now func() time.Time
}

var _ liquidity.State = (*Store)(nil)

// Open connects to the named dialect ("sqlite" or "postgres") and migrates the
// schema.
func Open(dialect, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dialect {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("store: unsupported dialect %q", dialect)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dialect, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return db, nil
}

// New wraps an already migrated database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) GetPool(ctx context.Context, assetID string) (*liquidity.AssetPool, error) {
	var row Pool
	err := s.db.WithContext(ctx).Take(&row, "asset_id = ?", assetID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load pool: %w", err)
	}
	return row.record()
}

func (s *Store) GetParticipant(ctx context.Context, assetID, participant string) (*liquidity.ParticipantRecord, error) {
	var row Participant
	err := s.db.WithContext(ctx).Take(&row, "asset_id = ? AND participant = ?", assetID, participant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load participant: %w", err)
	}
	return row.record()
}

func (s *Store) ListParticipants(ctx context.Context, assetID string) ([]*liquidity.ParticipantRecord, error) {
	var rows []Participant
	if err := s.db.WithContext(ctx).Where("asset_id = ?", assetID).Order("participant").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list participants: %w", err)
	}
	out := make([]*liquidity.ParticipantRecord, 0, len(rows))
	for i := range rows {
		record, err := rows[i].record()
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *Store) ListPools(ctx context.Context) ([]*liquidity.AssetPool, error) {
	var rows []Pool
	if err := s.db.WithContext(ctx).Order("asset_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list pools: %w", err)
	}
	out := make([]*liquidity.AssetPool, 0, len(rows))
	for i := range rows {
		pool, err := rows[i].record()
		if err != nil {
			return nil, err
		}
		out = append(out, pool)
	}
	return out, nil
}

// Commit upserts the batch records and appends its events to the journal
// inside one transaction.
func (s *Store) Commit(ctx context.Context, batch *liquidity.Batch) error {
	if batch == nil || batch.Pool == nil {
		return fmt.Errorf("store: empty batch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := clause.OnConflict{UpdateAll: true}
		if err := tx.Clauses(upsert).Create(poolRow(batch.Pool)).Error; err != nil {
			return fmt.Errorf("store: save pool: %w", err)
		}
		for _, record := range batch.Participants {
			if err := tx.Clauses(upsert).Create(participantRow(record)).Error; err != nil {
				return fmt.Errorf("store: save participant: %w", err)
			}
		}
		if len(batch.Events) == 0 {
			return nil
		}

		var heads []JournalEntry
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Order("sequence DESC").Limit(1).Find(&heads).Error; err != nil {
			return fmt.Errorf("store: load journal head: %w", err)
		}
		var head *events.JournalEntry
		if len(heads) == 1 {
			entry, err := heads[0].entry()
			if err != nil {
				return err
			}
			head = &entry
		}
		timestamp := batch.Timestamp
		if timestamp.IsZero() {
			timestamp = s.now()
		}
		for _, evt := range batch.Events {
			entry := events.NextEntry(head, evt.Event(), timestamp.Unix())
			attributes, err := json.Marshal(entry.Attributes)
			if err != nil {
				return fmt.Errorf("store: encode attributes: %w", err)
			}
			row := JournalEntry{
				Sequence:   entry.Sequence,
				EventID:    uuid.New(),
				Type:       entry.Type,
				AssetID:    entry.Attributes["asset"],
				Attributes: string(attributes),
				Timestamp:  entry.Timestamp,
				PrevHash:   entry.PrevHash,
				Hash:       entry.Hash,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("store: append journal: %w", err)
			}
			head = &entry
		}
		return nil
	})
}

// Journal returns up to limit entries with a sequence of at least from. A
// non-positive limit returns every remaining entry.
func (s *Store) Journal(ctx context.Context, from uint64, limit int) ([]events.JournalEntry, error) {
	query := s.db.WithContext(ctx).Where("sequence >= ?", from).Order("sequence ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []JournalEntry
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: read journal: %w", err)
	}
	out := make([]events.JournalEntry, 0, len(rows))
	for i := range rows {
		entry, err := rows[i].entry()
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (row *JournalEntry) entry() (events.JournalEntry, error) {
	entry := events.JournalEntry{
		Sequence:  row.Sequence,
		Type:      row.Type,
		Timestamp: row.Timestamp,
		PrevHash:  row.PrevHash,
		Hash:      row.Hash,
	}
	if row.Attributes != "" {
		if err := json.Unmarshal([]byte(row.Attributes), &entry.Attributes); err != nil {
			return events.JournalEntry{}, fmt.Errorf("store: decode journal %d: %w", row.Sequence, err)
		}
	}
	return entry, nil
}
