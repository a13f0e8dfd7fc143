package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/party/domain"
	"github.com/smallbiznis/billbook/pkg/db/option"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, party *domain.Party) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO parties (id, user_id, name, kind, email, phone, gstin, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		party.ID,
		party.UserID,
		party.Name,
		party.Kind,
		party.Email,
		party.Phone,
		party.GSTIN,
		party.CreatedAt,
		party.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*domain.Party, error) {
	var party domain.Party
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, name, kind, email, phone, gstin, created_at, updated_at
		 FROM parties WHERE user_id = ? AND id = ?`,
		userID,
		id,
	).Scan(&party).Error
	if err != nil {
		return nil, err
	}
	if party.ID == 0 {
		return nil, nil
	}
	return &party, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, userID snowflake.ID, filter domain.ListPartyFilter, page pagination.Pagination) ([]*domain.Party, int64, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Party{}).
		Where("user_id = ?", userID)
	stmt = option.Apply(stmt, option.ApplySearch(filter.Name, "name"))
	if filter.Kind != "" {
		stmt = stmt.Where("kind = ?", filter.Kind)
	}

	var total int64
	if err := stmt.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var parties []*domain.Party
	err := option.ApplyPagination(page).Apply(stmt).
		Order("name asc, id asc").
		Find(&parties).Error
	if err != nil {
		return nil, 0, err
	}
	return parties, total, nil
}
