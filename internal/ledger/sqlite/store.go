package sqlite

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/actionsum/autotrack/internal/ledger"
	"github.com/actionsum/autotrack/internal/models"
)

// Store handles all database operations for ledger entries and error logs.
// Times are written in UTC so that SQLite's textual comparisons on them
// stay ordered across offset changes, and handed back in local time.
type Store struct {
	db  *DB
	now func() time.Time
}

// NewStore creates a new store instance
func NewStore(db *DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock replaces the clock used to decide what "today" is.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// unavailable maps storage failures onto the ledger taxonomy.
func unavailable(err error, msg string) error {
	return errors.Wrap(errors.Wrap(ledger.ErrUnavailable, err.Error()), msg)
}

func toEntry(m *models.Entry) *ledger.Entry {
	e := &ledger.Entry{
		ID:       int64(m.ID),
		Category: m.Category,
		Activity: m.Activity,
		Start:    m.StartedAt.Local(),
	}
	if m.EndedAt != nil {
		end := m.EndedAt.Local()
		e.End = &end
	}
	return e
}

// LatestToday returns the most recently started entry of the current day
func (s *Store) LatestToday(ctx context.Context) (*ledger.Entry, error) {
	var entry models.Entry
	result := s.db.WithContext(ctx).
		Where("started_at >= ?", ledger.StartOfDay(s.now()).UTC()).
		Order("started_at DESC, id DESC").
		First(&entry)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, unavailable(result.Error, "failed to get latest entry")
	}

	e := toEntry(&entry)
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// OpenEntry returns the most recently started entry without an end time,
// including one that began before midnight
func (s *Store) OpenEntry(ctx context.Context) (*ledger.Entry, error) {
	var entry models.Entry
	result := s.db.WithContext(ctx).
		Where("ended_at IS NULL").
		Order("started_at DESC, id DESC").
		First(&entry)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, unavailable(result.Error, "failed to get open entry")
	}

	e := toEntry(&entry)
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// CloseEntry sets the end time of an entry
func (s *Store) CloseEntry(ctx context.Context, id int64, end time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.Entry{}).Where("id = ?", id).Update("ended_at", end.UTC())
	if result.Error != nil {
		return unavailable(result.Error, "failed to close entry")
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(ledger.ErrRejected, "entry %d not found", id)
	}
	return nil
}

// CreateEntry inserts a new open entry and returns its id
func (s *Store) CreateEntry(ctx context.Context, category, activity string, start time.Time) (int64, error) {
	entry := &models.Entry{
		Category:  category,
		Activity:  activity,
		StartedAt: start.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return 0, unavailable(err, "failed to insert entry")
	}
	return int64(entry.ID), nil
}

// ReopenEntry clears the end time of an entry
func (s *Store) ReopenEntry(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Model(&models.Entry{}).Where("id = ?", id).Update("ended_at", nil)
	if result.Error != nil {
		return unavailable(result.Error, "failed to reopen entry")
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(ledger.ErrRejected, "entry %d not found", id)
	}
	return nil
}

// GetByID retrieves an entry by its ID
func (s *Store) GetByID(ctx context.Context, id int64) (*ledger.Entry, error) {
	var entry models.Entry
	result := s.db.WithContext(ctx).First(&entry, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ledger.ErrRejected, "entry %d not found", id)
		}
		return nil, unavailable(result.Error, "failed to get entry")
	}
	return toEntry(&entry), nil
}

// EntriesSince retrieves all entries started at or after since, oldest first
func (s *Store) EntriesSince(ctx context.Context, since time.Time) ([]*ledger.Entry, error) {
	var rows []*models.Entry
	result := s.db.WithContext(ctx).
		Where("started_at >= ?", since.UTC()).
		Order("started_at ASC, id ASC").
		Find(&rows)
	if result.Error != nil {
		return nil, unavailable(result.Error, "failed to query entries")
	}

	entries := make([]*ledger.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, toEntry(row))
	}
	return entries, nil
}

// CreateErrorLog inserts a new error log into the database
func (s *Store) CreateErrorLog(errorLog *models.ErrorLog) error {
	result := s.db.Create(errorLog)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert error log")
	}
	return nil
}

// RecentErrors returns the latest error logs, newest first
func (s *Store) RecentErrors(limit int) ([]*models.ErrorLog, error) {
	var logs []*models.ErrorLog
	result := s.db.Order("timestamp DESC").Limit(limit).Find(&logs)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query error logs")
	}
	return logs, nil
}

// Clear removes all entries and error logs from the database
func (s *Store) Clear() error {
	if result := s.db.Exec("DELETE FROM entries"); result.Error != nil {
		return errors.Wrap(result.Error, "failed to clear entries")
	}
	if result := s.db.Exec("DELETE FROM error_logs"); result.Error != nil {
		return errors.Wrap(result.Error, "failed to clear error logs")
	}
	return nil
}
