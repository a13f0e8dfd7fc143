package db

import (
	"fmt"
	"net"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/smallbiznis/billbook/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Dialect picks the gorm driver for the configured database type.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	driver, dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	switch driver {
	case DriverMySQL:
		return mysql.Open(dsn), nil
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	default:
		return postgres.Open(dsn), nil
	}
}

// DSN returns the normalized driver name and its connection string. All
// drivers are pinned to UTC so invoice dates bucket the same everywhere.
func DSN(cfg config.Config) (string, string, error) {
	switch driver := strings.ToLower(strings.TrimSpace(cfg.DBType)); driver {
	case DriverPostgres, "postgresql", "":
		return DriverPostgres, fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, sslMode(cfg.DBSSLMode),
		), nil
	case DriverMySQL:
		my := gomysql.NewConfig()
		my.User = cfg.DBUser
		my.Passwd = cfg.DBPassword
		my.Net = "tcp"
		my.Addr = net.JoinHostPort(cfg.DBHost, cfg.DBPort)
		my.DBName = cfg.DBName
		my.ParseTime = true
		my.Loc = time.UTC
		my.Params = map[string]string{"charset": "utf8mb4"}
		return DriverMySQL, my.FormatDSN(), nil
	case DriverSQLite, "sqlite3":
		name := strings.TrimSpace(cfg.DBName)
		if name == "" {
			name = "billbook"
		}
		if !strings.HasSuffix(name, ".db") {
			name += ".db"
		}
		return DriverSQLite, name + "?_foreign_keys=on", nil
	default:
		return "", "", fmt.Errorf("unsupported database type %q", cfg.DBType)
	}
}

func sslMode(mode string) string {
	if mode = strings.TrimSpace(mode); mode != "" {
		return mode
	}
	return "disable"
}
