package adapter

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	require.True(t, IsRegistered("duckdb"))
	require.True(t, IsRegistered("postgres"))
	require.Equal(t, []string{"duckdb", "postgres"}, List())

	a, err := New(Config{Type: "duckdb"}, nil)
	require.NoError(t, err)
	require.Equal(t, "duckdb", a.DialectName())

	_, err = New(Config{Type: "oracle"}, nil)
	var uerr *UnknownAdapterError
	require.ErrorAs(t, err, &uerr)
	require.Equal(t, "oracle", uerr.Type)

	_, err = New(Config{}, nil)
	require.Error(t, err)
}

func TestBuildPostgresDSN(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected string
	}{
		{
			name: "basic connection",
			config: Config{
				Host:     "localhost",
				Port:     5432,
				Database: "testdb",
				Username: "user",
				Password: "pass",
			},
			expected: "host=localhost port=5432 dbname=testdb sslmode=disable user=user password=pass",
		},
		{
			name: "custom sslmode",
			config: Config{
				Host:     "prod.example.com",
				Database: "proddb",
				Username: "admin",
				Options:  map[string]string{"sslmode": "require"},
			},
			expected: "host=prod.example.com port=5432 dbname=proddb sslmode=require user=admin",
		},
		{
			name:     "defaults",
			config:   Config{Database: "mydb"},
			expected: "host=localhost port=5432 dbname=mydb sslmode=disable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, buildPostgresDSN(tt.config))
		})
	}
}

func TestRowsToTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	when := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"region", "amount", "active", "dt"}).
			AddRow("us", int64(100), true, when).
			AddRow("eu", 250.5, false, when).
			AddRow(nil, nil, nil, nil),
	)

	rows, err := db.Query("SELECT region, amount, active, dt FROM t")
	require.NoError(t, err)
	defer rows.Close()

	tbl, err := rowsToTable(rows)
	require.NoError(t, err)
	require.Equal(t, 3, tbl.NumRows())
	require.Equal(t, []string{"region", "amount", "active", "dt"}, tbl.ColumnNames())

	amount, ok := tbl.Column("amount")
	require.True(t, ok)
	require.Equal(t, []any{100.0, 250.5, nil}, amount)

	region, ok := tbl.Column("region")
	require.True(t, ok)
	require.Equal(t, []any{"us", "eu", nil}, region)

	dt, ok := tbl.Column("dt")
	require.True(t, ok)
	require.Equal(t, when, dt[0])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRowsToTable_NumericText(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"v"}).AddRow([]byte("3.5")).AddRow([]byte("hello")),
	)

	rows, err := db.Query("SELECT v FROM t")
	require.NoError(t, err)
	defer rows.Close()

	tbl, err := rowsToTable(rows)
	require.NoError(t, err)
	col, ok := tbl.Column("v")
	require.True(t, ok)
	require.Equal(t, []any{3.5, "hello"}, col)
}
