package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/smallbiznis/billbook/internal/user/domain"
	"gorm.io/gorm"
)

const (
	defaultUserName  = "Billbook Owner"
	defaultUserEmail = "owner@billbook.local"
)

// EnsureDefaultUser creates the bootstrap owner account when it is missing.
// It is keyed by email, so repeated startups return the same user.
func EnsureDefaultUser(db *gorm.DB, name, email string) (userdomain.User, error) {
	if db == nil {
		return userdomain.User{}, errors.New("seed database handle is required")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultUserName
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		email = defaultUserEmail
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return userdomain.User{}, err
	}

	ctx := context.Background()
	var user userdomain.User
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.WithContext(ctx).Where("email = ?", email).First(&user).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		user = userdomain.User{
			ID:        node.Generate(),
			Name:      name,
			Email:     email,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.WithContext(ctx).Create(&user).Error
	})
	if err != nil {
		return userdomain.User{}, err
	}
	return user, nil
}
