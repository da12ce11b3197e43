package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Workman/internal/domain"
)

// EntityRepo — хранилище сущностей в таблице entities (поля в JSONB).
type EntityRepo struct {
	pool *pgxpool.Pool
}

// NewEntityRepo создаёт новый EntityRepo.
func NewEntityRepo(pool *pgxpool.Pool) *EntityRepo {
	return &EntityRepo{pool: pool}
}

// Get возвращает сущность по типу и ID.
func (r *EntityRepo) Get(ctx context.Context, objType, id string) (*domain.Entity, error) {
	var fields []byte
	err := r.pool.QueryRow(ctx, `
		SELECT fields FROM entities WHERE obj_type = $1 AND id = $2
	`, objType, id).Scan(&fields)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}

	payload, err := domain.DecodePayload(fields)
	if err != nil {
		return nil, fmt.Errorf("decode entity fields: %w", err)
	}
	return &domain.Entity{ID: id, ObjType: objType, Fields: payload}, nil
}

// Save создаёт или обновляет сущность. Несохранённая сущность получает новый ID.
func (r *EntityRepo) Save(ctx context.Context, entity *domain.Entity, user *domain.User) (string, error) {
	fields, err := domain.Payload(entity.Fields).Encode()
	if err != nil {
		return "", err
	}
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}

	var updatedBy *string
	if user != nil {
		updatedBy = nullString(user.ID)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO entities (obj_type, id, fields, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (obj_type, id) DO UPDATE
		SET fields = EXCLUDED.fields, updated_by = EXCLUDED.updated_by, updated_at = NOW()
	`, entity.ObjType, entity.ID, fields, updatedBy)
	if err != nil {
		return "", fmt.Errorf("save entity: %w", err)
	}
	return entity.ID, nil
}
