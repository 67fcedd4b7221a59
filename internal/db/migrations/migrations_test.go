package migrations

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testMigration1 = &Migration{ID: "test1", Name: "test1", UpSQL: "CREATE TABLE test1 (id INT)", DownSQL: "DROP TABLE test1"}
	testMigration2 = &Migration{ID: "test2", Name: "test2", UpSQL: "CREATE TABLE test2 (id INT)", DownSQL: "DROP TABLE test2"}
)

func newMockMigrator(t *testing.T) (*Migrator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, nil), mock
}

func TestAll(t *testing.T) {
	all := All()
	require.Len(t, all, 2)
	assert.Equal(t, "001_initial_schema", all[0].Name)
	assert.Equal(t, "002_summary_indexes", all[1].Name)

	seen := map[string]bool{}
	for _, m := range all {
		assert.False(t, seen[m.Name], "duplicate migration %s", m.Name)
		seen[m.Name] = true
		assert.NotEmpty(t, m.UpSQL)
		assert.NotEmpty(t, m.DownSQL)
	}
	assert.Contains(t, InitialSchema.UpSQL, "flight_uploads")
	assert.Contains(t, InitialSchema.UpSQL, "flight_records")
	assert.Contains(t, InitialSchema.UpSQL, "system_stats")
}

func TestMigratorInitialize(t *testing.T) {
	m, mock := newMockMigrator(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS migrations`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, m.Initialize(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigratorGetAppliedMigrations(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(sqlmock.Sqlmock)
		expectError bool
		expected    map[string]bool
	}{
		{
			name: "no applied migrations",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT name FROM migrations ORDER BY id`).WillReturnRows(sqlmock.NewRows([]string{"name"}))
			},
			expected: map[string]bool{},
		},
		{
			name: "multiple applied migrations",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT name FROM migrations ORDER BY id`).
					WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("001_initial_schema").AddRow("002_summary_indexes"))
			},
			expected: map[string]bool{"001_initial_schema": true, "002_summary_indexes": true},
		},
		{
			name: "query error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT name FROM migrations`).WillReturnError(sql.ErrConnDone)
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, mock := newMockMigrator(t)
			tt.setupMock(mock)

			applied, err := m.GetAppliedMigrations(context.Background())

			if tt.expectError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, applied)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMigratorApplyMigration(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "success",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`CREATE TABLE test1`).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(`INSERT INTO migrations`).WithArgs("test1").WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "begin fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(sql.ErrConnDone)
			},
			expectError: true,
		},
		{
			name: "migration sql fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`CREATE TABLE test1`).WillReturnError(sql.ErrConnDone)
				mock.ExpectRollback()
			},
			expectError: true,
		},
		{
			name: "record fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`CREATE TABLE test1`).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(`INSERT INTO migrations`).WillReturnError(sql.ErrConnDone)
				mock.ExpectRollback()
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, mock := newMockMigrator(t)
			tt.setupMock(mock)

			err := m.ApplyMigration(context.Background(), testMigration1)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMigratorMigrate(t *testing.T) {
	t.Run("applies only pending", func(t *testing.T) {
		m, mock := newMockMigrator(t)
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT name FROM migrations`).WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("test1"))
		mock.ExpectBegin()
		mock.ExpectExec(`CREATE TABLE test2`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO migrations`).WithArgs("test2").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		n, err := m.Migrate(context.Background(), []*Migration{testMigration1, testMigration2})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("initialize fails", func(t *testing.T) {
		m, mock := newMockMigrator(t)
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS migrations`).WillReturnError(sql.ErrConnDone)

		_, err := m.Migrate(context.Background(), []*Migration{testMigration1})
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.Contains(t, err.Error(), "failed to initialize migrations")
	})

	t.Run("apply fails", func(t *testing.T) {
		m, mock := newMockMigrator(t)
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT name FROM migrations`).WillReturnRows(sqlmock.NewRows([]string{"name"}))
		mock.ExpectBegin()
		mock.ExpectExec(`CREATE TABLE test1`).WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		n, err := m.Migrate(context.Background(), []*Migration{testMigration1, testMigration2})
		assert.Equal(t, 0, n)
		assert.Contains(t, err.Error(), "failed to apply migration test1")
	})
}

func TestMigratorRollback(t *testing.T) {
	t.Run("rolls back last applied", func(t *testing.T) {
		m, mock := newMockMigrator(t)
		mock.ExpectQuery(`SELECT name FROM migrations`).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("test1").AddRow("test2"))
		mock.ExpectBegin()
		mock.ExpectExec(`DROP TABLE test2`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`DELETE FROM migrations WHERE name`).WithArgs("test2").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		last, err := m.Rollback(context.Background(), []*Migration{testMigration1, testMigration2})
		require.NoError(t, err)
		assert.Equal(t, "test2", last.Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nothing applied", func(t *testing.T) {
		m, mock := newMockMigrator(t)
		mock.ExpectQuery(`SELECT name FROM migrations`).WillReturnRows(sqlmock.NewRows([]string{"name"}))

		_, err := m.Rollback(context.Background(), []*Migration{testMigration1})
		assert.ErrorIs(t, err, ErrNothingToRollback)
	})
}
