package dbfixture

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"cgr/internal/config"
	"cgr/internal/domain"
	"cgr/internal/fixture"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		want  string
	}{
		{"plain", []string{"db", "mod"}, "cgr_db_mod"},
		{"node path", []string{"db", "pkg/mod_test::TestThing"}, "cgr_db_pkg_mod_test_testthing"},
		{"case id", []string{"db", "mod::test_a[1-x]"}, "cgr_db_mod_test_a_1_x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DatabaseName("cgr", tt.parts...)
			assert.Equal(t, tt.want, got)
			assert.True(t, isValidDatabaseName(got))
		})
	}

	long := DatabaseName("cgr", "db", strings.Repeat("abc", 40), "x")
	assert.LessOrEqual(t, len(long), maxNameLen)
}

func TestIsValidDatabaseName(t *testing.T) {
	assert.False(t, isValidDatabaseName(""))
	assert.False(t, isValidDatabaseName("a;drop"))
	assert.False(t, isValidDatabaseName("a`b"))
	assert.True(t, isValidDatabaseName("cgr_delete_user"))
}

func TestServerDSN(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "db.local", Port: "3307", User: "root", Password: "pw"}
	dsn, err := serverDSN(cfg, "cgr_x")
	require.NoError(t, err)
	assert.Contains(t, dsn, "root:pw@tcp(db.local:3307)/cgr_x")
	assert.Contains(t, dsn, "parseTime=true")
}

func TestFactoryConnectFailure(t *testing.T) {
	errDown := errors.New("server down")
	var dsns []string
	open := func(dsn string) (*sql.DB, error) {
		dsns = append(dsns, dsn)
		return nil, errDown
	}

	cfg := config.DatabaseConfig{Host: "127.0.0.1", Port: "3306", User: "root", Prefix: "cgr"}
	reg := fixture.NewRegistry()
	reg.MustRegister(mysqlDefinition(cfg, "db", fixture.ScopeModule, open))

	session := domain.NewSession("s")
	mod := session.Child(domain.KindModule, "mod")
	c := domain.NewCase(mod, "a")
	c.Resources = []string{"db"}

	table, err := reg.Table(c)
	require.NoError(t, err)
	state := fixture.NewSetupState()
	require.NoError(t, state.Setup(mod.Chain()))
	req := reg.NewRequest(context.Background(), c, table, state.Owner(mod, &fixture.FinalizerList{}))

	_, err = req.Resource("db")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errDown))
	assert.Contains(t, err.Error(), "failed to connect to database server")
	require.Len(t, dsns, 1)
	assert.Contains(t, dsns[0], "@tcp(127.0.0.1:3306)/?")
}

func TestArg(t *testing.T) {
	db := &DB{Name: "cgr_x"}
	got, err := Arg(domain.Args{"db": db}, "db")
	require.NoError(t, err)
	assert.Same(t, db, got)

	_, err = Arg(domain.Args{"db": 1}, "db")
	assert.Error(t, err)
}
