// Package history keeps a per-user list of finished conversions in SQLite.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GuestUser owns the history of callers that are not signed in.
const GuestUser = "guest"

var ErrNotFound = errors.New("history item not found")

type Item struct {
	Key       string    `gorm:"primaryKey;column:item_key;size:36" json:"key"`
	UserID    string    `gorm:"index;not null" json:"userId"`
	App       string    `json:"app"`
	Name      string    `json:"name"`
	Detail    string    `json:"detail"`
	Bytes     int64     `json:"bytes"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

// Listener receives the full history of one user, newest first.
type Listener func(items []Item)

type Store struct {
	db  *gorm.DB
	log zerolog.Logger

	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]Listener
}

// Open opens (creating if needed) the history database at path.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.AutoMigrate(&Item{}); err != nil {
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &Store{
		db:   db,
		log:  log.With().Str("comp", "history").Logger(),
		subs: make(map[string]map[int]Listener),
	}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Append stores item for userID and returns it with its key and timestamp set.
func (s *Store) Append(ctx context.Context, userID string, item Item) (Item, error) {
	item.Key = uuid.NewString()
	item.UserID = normalizeUser(userID)
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	item.CreatedAt = item.CreatedAt.UTC()
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		return Item{}, err
	}
	s.notify(ctx, item.UserID)
	return item, nil
}

func (s *Store) List(ctx context.Context, userID string) ([]Item, error) {
	var items []Item
	err := s.db.WithContext(ctx).
		Where("user_id = ?", normalizeUser(userID)).
		Order("created_at desc").
		Find(&items).Error
	return items, err
}

func (s *Store) Clear(ctx context.Context, userID string) error {
	userID = normalizeUser(userID)
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&Item{}).Error; err != nil {
		return err
	}
	s.notify(ctx, userID)
	return nil
}

func (s *Store) RemoveOne(ctx context.Context, userID, key string) error {
	userID = normalizeUser(userID)
	res := s.db.WithContext(ctx).Where("user_id = ? AND item_key = ?", userID, key).Delete(&Item{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.notify(ctx, userID)
	return nil
}

// Subscribe calls fn with the current history of userID and again after every
// change to it, until the returned function is called.
func (s *Store) Subscribe(ctx context.Context, userID string, fn Listener) (func(), error) {
	userID = normalizeUser(userID)
	items, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[int]Listener)
	}
	s.subs[userID][id] = fn
	s.mu.Unlock()

	fn(items)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[userID], id)
			if len(s.subs[userID]) == 0 {
				delete(s.subs, userID)
			}
			s.mu.Unlock()
		})
	}, nil
}

func (s *Store) notify(ctx context.Context, userID string) {
	s.mu.Lock()
	listeners := make([]Listener, 0, len(s.subs[userID]))
	for _, fn := range s.subs[userID] {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	if len(listeners) == 0 {
		return
	}

	items, err := s.List(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user", userID).Msg("reload history for subscribers")
		return
	}
	for _, fn := range listeners {
		fn(items)
	}
}

func normalizeUser(userID string) string {
	if userID == "" {
		return GuestUser
	}
	return userID
}
