// Package dbfixture provides resources backed by throwaway MySQL databases.
package dbfixture

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"cgr/internal/config"
	"cgr/internal/domain"
	"cgr/internal/fixture"

	"github.com/go-sql-driver/mysql"
)

const maxNameLen = 64

var validName = regexp.MustCompile(`^[a-z0-9_]+$`)

// DB is the value of a MySQL resource: a pool connected to a database that
// exists for the lifetime of the resource.
type DB struct {
	*sql.DB
	Name string
}

// Opener opens a connection pool for a DSN.
type Opener func(dsn string) (*sql.DB, error)

func openMySQL(dsn string) (*sql.DB, error) {
	return sql.Open("mysql", dsn)
}

// MySQL returns a resource that creates a database named after the prefix,
// the resource name and the owner of its scope, and drops it when the
// resource is finalized.
func MySQL(cfg config.DatabaseConfig, name string, scope fixture.Scope) fixture.Definition {
	return mysqlDefinition(cfg, name, scope, openMySQL)
}

func mysqlDefinition(cfg config.DatabaseConfig, name string, scope fixture.Scope, open Opener) fixture.Definition {
	return fixture.Definition{
		Name:  name,
		Scope: scope,
		Factory: func(r *fixture.Request) (any, error) {
			dbName := DatabaseName(cfg.Prefix, name, ownerID(scope, r))
			if !isValidDatabaseName(dbName) {
				return nil, fmt.Errorf("invalid database name: %s", dbName)
			}
			db, err := createDatabase(r.Context(), cfg, dbName, open)
			if err != nil {
				return nil, err
			}
			r.AddFinalizer(func() error {
				return dropDatabase(cfg, db, open)
			})
			return db, nil
		},
	}
}

func ownerID(scope fixture.Scope, r *fixture.Request) string {
	if n := fixture.ScopeNode(scope, r.Node()); n != nil {
		return n.ID
	}
	return r.CaseID()
}

// DatabaseName builds a MySQL-safe database name. Characters outside
// [a-z0-9_] are replaced and the result is cut to the MySQL limit.
func DatabaseName(prefix string, parts ...string) string {
	raw := strings.Join(append([]string{prefix}, parts...), "_")
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(raw) {
		ok := r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !ok {
			r = '_'
		}
		if r == '_' {
			if underscore {
				continue
			}
			underscore = true
		} else {
			underscore = false
		}
		b.WriteRune(r)
	}
	name := strings.Trim(b.String(), "_")
	if len(name) > maxNameLen {
		name = strings.TrimRight(name[:maxNameLen], "_")
	}
	return name
}

func isValidDatabaseName(name string) bool {
	return len(name) > 0 && len(name) <= maxNameLen && validName.MatchString(name)
}

func serverDSN(cfg config.DatabaseConfig, dbName string) (string, error) {
	mc, err := mysql.ParseDSN(cfg.DSN())
	if err != nil {
		return "", fmt.Errorf("parse database DSN: %w", err)
	}
	mc.DBName = dbName
	mc.ParseTime = true
	return mc.FormatDSN(), nil
}

func createDatabase(ctx context.Context, cfg config.DatabaseConfig, dbName string, open Opener) (*DB, error) {
	dsn, err := serverDSN(cfg, "")
	if err != nil {
		return nil, err
	}
	admin, err := open(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database server: %w", err)
	}
	defer admin.Close()

	if err := admin.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database server: %w", err)
	}
	if _, err := admin.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", dbName)); err != nil {
		return nil, fmt.Errorf("failed to create database %s: %w", dbName, err)
	}

	dsn, err = serverDSN(cfg, dbName)
	if err != nil {
		return nil, err
	}
	pool, err := open(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database %s: %w", dbName, err)
	}
	return &DB{DB: pool, Name: dbName}, nil
}

func dropDatabase(cfg config.DatabaseConfig, db *DB, open Opener) error {
	closeErr := db.Close()

	dsn, err := serverDSN(cfg, "")
	if err != nil {
		return err
	}
	admin, err := open(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database server: %w", err)
	}
	defer admin.Close()

	if _, err := admin.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", db.Name)); err != nil {
		return fmt.Errorf("failed to drop database %s: %w", db.Name, err)
	}
	if closeErr != nil {
		return fmt.Errorf("close database %s: %w", db.Name, closeErr)
	}
	return nil
}

// Arg returns the MySQL resource called name from a case's arguments.
func Arg(args domain.Args, name string) (*DB, error) {
	return domain.Arg[*DB](args, name)
}
