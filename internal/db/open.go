// Package db opens the gorm handle for whichever database the DSN names.
package db

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const defaultSQLitePath = "data/playdeck.db"

// Open dispatches on the DSN scheme: postgres URLs go to the postgres driver,
// everything else is treated as a sqlite path. An empty DSN means a local
// sqlite file under data/, which suits single-node deployments and tests.
func Open(dsn string) (*gorm.DB, error) {
	switch {
	case hasScheme(dsn, "postgres", "postgresql", "pgx"):
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case dsn == "":
		_ = os.MkdirAll(filepath.Dir(defaultSQLitePath), 0o755)
		dsn = "file:" + defaultSQLitePath
	case hasScheme(dsn, "sqlite"):
		dsn = "file:" + strings.TrimPrefix(dsn, "sqlite://")
		dsn = strings.Replace(dsn, "file:/", "file:", 1)
	}
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
}

func hasScheme(dsn string, schemes ...string) bool {
	for _, s := range schemes {
		if strings.HasPrefix(dsn, s+"://") {
			return true
		}
	}
	return false
}
