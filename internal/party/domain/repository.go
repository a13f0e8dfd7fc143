package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, party *Party) error
	FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*Party, error)
	List(ctx context.Context, db *gorm.DB, userID snowflake.ID, filter ListPartyFilter, page pagination.Pagination) ([]*Party, int64, error)
}
