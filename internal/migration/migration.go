package migration

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	userdomain "github.com/smallbiznis/billbook/internal/user/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Result describes the schema state after Migrate.
type Result struct {
	// Version is the last applied SQL migration; zero for AutoMigrate.
	Version uint
	// Auto is set when the schema came from gorm models rather than SQL files.
	Auto bool
}

// Models lists every persisted type, for dialects without SQL migrations.
func Models() []any {
	return []any{
		&userdomain.User{},
		&partydomain.Party{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&auditdomain.AuditLog{},
	}
}

// Migrate applies the embedded SQL migrations on postgres. MySQL and SQLite
// get their tables from the gorm models.
func Migrate(conn *gorm.DB) (Result, error) {
	if conn == nil {
		return Result{}, errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() != "postgres" {
		return Result{Auto: true}, conn.AutoMigrate(Models()...)
	}

	m, err := newPostgresMigrator(conn)
	if err != nil {
		return Result{}, err
	}
	// m.Close is skipped on purpose: it would close the pool gorm shares.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return Result{}, fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return Result{}, fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return Result{Version: version}, fmt.Errorf("migration %d left the schema dirty", version)
	}
	return Result{Version: version}, nil
}

func newPostgresMigrator(conn *gorm.DB) (*migrate.Migrate, error) {
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", source, "postgres", driver)
}
