package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/easeaico/rolechat/internal/types"
)

const characterColumns = `id, name, gender, age, job, personality, speaking_style,
	likes, dislikes, quote, description, basic_info, first_chat_scene,
	first_chat_line, avatar, created_at, updated_at`

// characterModel declares the characters table for AutoMigrate. Reads go
// through pgx with characterColumns, which must list the same columns.
type characterModel struct {
	ID             string `gorm:"primaryKey"`
	Name           string `gorm:"not null"`
	Gender         string `gorm:"not null;default:''"`
	Age            string `gorm:"not null;default:''"`
	Job            string `gorm:"not null;default:''"`
	Personality    string `gorm:"not null;default:''"`
	SpeakingStyle  string `gorm:"not null;default:''"`
	Likes          string `gorm:"not null;default:''"`
	Dislikes       string `gorm:"not null;default:''"`
	Quote          string `gorm:"not null;default:''"`
	Description    string `gorm:"not null;default:''"`
	BasicInfo      string `gorm:"not null;default:''"`
	FirstChatScene string `gorm:"not null;default:''"`
	FirstChatLine  string `gorm:"not null;default:''"`
	Avatar         string `gorm:"not null;default:''"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (characterModel) TableName() string {
	return "characters"
}

// CharacterRepo reads the characters table through the shared pgx pool.
type CharacterRepo struct {
	pool *pgxpool.Pool
}

// NewCharacterRepo returns a CharacterRepo.
func NewCharacterRepo(pool *pgxpool.Pool) *CharacterRepo {
	return &CharacterRepo{pool: pool}
}

// GetByID fetches a character by ID.
func (r *CharacterRepo) GetByID(ctx context.Context, id string) (*types.Character, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+characterColumns+` FROM characters WHERE id = $1`, id)
	c, err := scanCharacter(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrCharacterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get character by id: %w", err)
	}
	return c, nil
}

// List returns all characters ordered by name.
func (r *CharacterRepo) List(ctx context.Context) ([]types.Character, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+characterColumns+` FROM characters ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	defer rows.Close()

	var out []types.Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan character: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate characters: %w", err)
	}
	return out, nil
}

func scanCharacter(row pgx.Row) (*types.Character, error) {
	var c types.Character
	if err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Gender,
		&c.Age,
		&c.Job,
		&c.Personality,
		&c.SpeakingStyle,
		&c.Likes,
		&c.Dislikes,
		&c.Quote,
		&c.Description,
		&c.BasicInfo,
		&c.FirstChatScene,
		&c.FirstChatLine,
		&c.Avatar,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}
