package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/talkincode/wagate/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps sessions in the wa_session table of a gorm database.
// Works with the postgres and sqlite dialects.
type GormStore struct {
	db      *gorm.DB
	migrate sync.Mutex
}

// NewGormStore wraps an application owned database. Close does not close it.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) EnsureSchema(ctx context.Context) error {
	s.migrate.Lock()
	defer s.migrate.Unlock()
	return connErr("migrate", s.db.WithContext(ctx).AutoMigrate(&domain.SessionRecord{}))
}

func (s *GormStore) Put(ctx context.Context, key string, blob []byte) error {
	rec := domain.SessionRecord{SessionKey: key, Data: blob, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&rec).Error
	return connErr("put", err)
}

func (s *GormStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var rec domain.SessionRecord
	tx := s.db.WithContext(ctx).Where("session_key = ?", key).Limit(1).Find(&rec)
	if tx.Error != nil {
		return nil, false, connErr("get", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return nil, false, nil
	}
	return rec.Data, true, nil
}

func (s *GormStore) Delete(ctx context.Context, key string) error {
	return connErr("delete", s.db.WithContext(ctx).Delete(&domain.SessionRecord{}, "session_key = ?", key).Error)
}

func (s *GormStore) Exists(ctx context.Context, key string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.SessionRecord{}).Where("session_key = ?", key).Count(&count).Error
	if err != nil {
		return false, connErr("exists", err)
	}
	return count > 0, nil
}

func (s *GormStore) HealthCheck(ctx context.Context) bool {
	return safeHealth(func() bool {
		sqlDB, err := s.db.DB()
		if err != nil {
			return false
		}
		return sqlDB.PingContext(ctx) == nil
	})
}

// Close is a no-op, the database belongs to the application.
func (s *GormStore) Close() error {
	return nil
}
