package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/rolechat/internal/types"
)

// memoryModel maps to the memories table, one fact per row.
type memoryModel struct {
	ID          int64     `gorm:"primaryKey"`
	UserID      string    `gorm:"index:idx_memories_key;not null"`
	CharacterID string    `gorm:"index:idx_memories_key;not null"`
	MemoryType  string    `gorm:"not null"`
	Content     string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (memoryModel) TableName() string {
	return "memories"
}

// MemoryRepo accesses memory rows through gorm.
type MemoryRepo struct {
	db *gorm.DB
}

// NewMemoryRepo returns a MemoryRepo.
func NewMemoryRepo(db *gorm.DB) *MemoryRepo {
	return &MemoryRepo{db: db}
}

func (r *MemoryRepo) ListByKey(ctx context.Context, userID, characterID string) ([]types.MemoryRow, error) {
	var records []memoryModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND character_id = ?", userID, characterID).
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}

	rows := make([]types.MemoryRow, 0, len(records))
	for _, m := range records {
		rows = append(rows, types.MemoryRow{
			ID:          m.ID,
			UserID:      m.UserID,
			CharacterID: m.CharacterID,
			MemoryType:  types.MemoryCategory(m.MemoryType),
			Content:     m.Content,
			CreatedAt:   m.CreatedAt,
		})
	}
	return rows, nil
}

func (r *MemoryRepo) Insert(ctx context.Context, row types.MemoryRow) error {
	record := memoryModel{
		UserID:      row.UserID,
		CharacterID: row.CharacterID,
		MemoryType:  string(row.MemoryType),
		Content:     row.Content,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}
	return nil
}

func (r *MemoryRepo) DeleteByID(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Delete(&memoryModel{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete memory %d: %w", id, err)
	}
	return nil
}

func (r *MemoryRepo) DeleteByKey(ctx context.Context, userID, characterID string) error {
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND character_id = ?", userID, characterID).
		Delete(&memoryModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete memories: %w", err)
	}
	return nil
}
