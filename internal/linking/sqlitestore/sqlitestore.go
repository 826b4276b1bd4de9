// Package sqlitestore is a sqlite-backed session store for deployments that
// run more than one replica behind a load balancer, or that want linking
// sessions to survive a restart. Same contract as the in-memory store:
// sliding TTL, expired entries read as missing.
package sqlitestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dvloznov/bank-bridge/internal/linking"
)

// record is the persisted row. The session itself is stored as one JSON
// document; nothing ever queries inside it.
type record struct {
	ID        string `gorm:"primaryKey"`
	Data      []byte
	ExpiresAt time.Time
}

func (record) TableName() string {
	return "linking_sessions"
}

// Store persists sessions in a sqlite database.
type Store struct {
	db  *gorm.DB
	ttl time.Duration
}

// New opens (or creates) the sqlite database at path and migrates the
// session table.
func New(path string, ttl time.Duration) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: opening database: %w", err)
	}
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("sqlitestore: migrating schema: %w", err)
	}
	return &Store{db: db, ttl: ttl}, nil
}

// Get implements linking.Store. A hit refreshes the expiry.
func (s *Store) Get(ctx context.Context, id string) (linking.Session, bool, error) {
	var rec record
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return linking.Session{}, false, nil
	}
	if err != nil {
		return linking.Session{}, false, fmt.Errorf("sqlitestore: loading session: %w", err)
	}

	if time.Now().After(rec.ExpiresAt) {
		if err := s.Delete(ctx, id); err != nil {
			return linking.Session{}, false, err
		}
		return linking.Session{}, false, nil
	}

	var sess linking.Session
	if err := json.Unmarshal(rec.Data, &sess); err != nil {
		return linking.Session{}, false, fmt.Errorf("sqlitestore: decoding session: %w", err)
	}

	err = s.db.WithContext(ctx).Model(&record{}).Where("id = ?", id).
		Update("expires_at", time.Now().Add(s.ttl)).Error
	if err != nil {
		return linking.Session{}, false, fmt.Errorf("sqlitestore: refreshing expiry: %w", err)
	}
	return sess, true, nil
}

// Put implements linking.Store.
func (s *Store) Put(ctx context.Context, id string, sess linking.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("sqlitestore: encoding session: %w", err)
	}
	rec := record{ID: id, Data: data, ExpiresAt: time.Now().Add(s.ttl)}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("sqlitestore: saving session: %w", err)
	}
	return nil
}

// Delete implements linking.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Delete(&record{}, "id = ?", id).Error
	if err != nil {
		return fmt.Errorf("sqlitestore: deleting session: %w", err)
	}
	return nil
}

// Ensure Store implements the session store interface.
var _ linking.Store = (*Store)(nil)
