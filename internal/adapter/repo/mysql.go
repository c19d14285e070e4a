package repo

import (
	"database/sql"
	"embed"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"

	"github.com/hsmazur/Taberna3/internal/usecase"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MySQL server error numbers the stores translate.
const (
	errDupEntry           = 1062
	errOutOfRange         = 1264
	errRowIsReferenced    = 1451
	errRowIsReferencedOld = 1217
	errNoReferencedRow    = 1452
)

func mysqlCode(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

func isDuplicate(err error) bool { return mysqlCode(err) == errDupEntry }

func isReferenced(err error) bool {
	c := mysqlCode(err)
	return c == errRowIsReferenced || c == errRowIsReferencedOld
}

func isMissingParent(err error) bool { return mysqlCode(err) == errNoReferencedRow }

func isOutOfRange(err error) bool { return mysqlCode(err) == errOutOfRange }

// storageErr hides driver failures behind usecase.StorageError and keeps the stack for logs.
func storageErr(op string, err error) error {
	return &usecase.StorageError{Op: op, Err: errors.WithStack(err)}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Migrator applies the embedded schema migrations.
type Migrator struct{ m *migrate.Migrate }

func NewMigrator(db *sql.DB) (*Migrator, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, "migrations source")
	}
	drv, err := migratemysql.WithInstance(db, &migratemysql.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "migrations driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "mysql", drv)
	if err != nil {
		return nil, errors.Wrap(err, "migrate")
	}
	return &Migrator{m: m}, nil
}

func (g *Migrator) Up() error {
	if err := g.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (g *Migrator) Down() error {
	if err := g.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (g *Migrator) Version() (uint, bool, error) {
	v, dirty, err := g.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}
