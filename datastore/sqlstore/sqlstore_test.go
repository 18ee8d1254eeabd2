/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqlstore_test

import (
	"context"
	"reflect"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/mysql"

	"github.com/suparena/entitywork"
	"github.com/suparena/entitywork/config"
	"github.com/suparena/entitywork/datastore/sqlstore"
	"github.com/suparena/entitywork/datastore/testmodels"
	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/query"
	"github.com/suparena/entitywork/storagemodels"
)

type Employee = testmodels.Employee

func startFactory(t *testing.T) (*entitywork.ContextFactory, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)

	sf := sqlstore.NewFactory(config.SQLConfig{LogLevel: "silent"},
		sqlstore.WithDialector(mysql.New(mysql.Config{Conn: conn, SkipInitializeWithVersion: true})),
		sqlstore.WithTypes(reflect.TypeFor[Employee](), reflect.TypeFor[testmodels.Vacancy]()),
	)
	cf := entitywork.NewContextFactory(
		entitywork.WithProviderFactories(sf),
		entitywork.WithLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, cf.Start(context.Background()))
	t.Cleanup(func() { _ = cf.Close() })
	return cf, mock
}

func begin(t *testing.T, cf *entitywork.ContextFactory) (*entitywork.Context, context.Context) {
	t.Helper()
	c, err := cf.NewContext()
	require.NoError(t, err)
	ctx, err := c.Start(context.Background())
	require.NoError(t, err)
	return c, ctx
}

func sql(s string) string { return regexp.QuoteMeta(s) }

func TestAddFlushesAtCommit(t *testing.T) {
	cf, mock := startFactory(t)

	mock.ExpectBegin()
	c, ctx := begin(t, cf)

	e := &Employee{Name: "Ann", Age: 30}
	require.NoError(t, c.Add(ctx, e))

	mock.ExpectExec(sql("INSERT INTO `employees`")).WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit()
	require.NoError(t, c.Commit(ctx))
	require.NoError(t, c.Close())

	assert.Equal(t, uint(7), e.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetFlushesPendingWrites(t *testing.T) {
	cf, mock := startFactory(t)

	mock.ExpectBegin()
	c, ctx := begin(t, cf)
	require.NoError(t, c.Add(ctx, &Employee{Name: "Ann", Age: 30}))

	mock.ExpectExec(sql("INSERT INTO `employees`")).WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery(sql("SELECT * FROM `employees` WHERE `employees`.`id` = ?")).
		WithArgs(7, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age"}).AddRow(7, "Ann", 30))
	got, err := entitywork.Get[Employee](ctx, c, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ann", got.Name)

	mock.ExpectQuery(sql("SELECT * FROM `employees` WHERE `employees`.`id` = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age"}))
	missing, err := entitywork.Get[Employee](ctx, c, 8)
	require.NoError(t, err)
	assert.Nil(t, missing)

	mock.ExpectRollback()
	require.NoError(t, c.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDynamicQueryPagination(t *testing.T) {
	cf, mock := startFactory(t)

	mock.ExpectBegin()
	c, ctx := begin(t, cf)

	prepared, err := entitywork.Fulfill[*query.Prepared[Employee]](ctx, c, query.New[Employee]().Set("AgeGt", 27))
	require.NoError(t, err)

	mock.ExpectQuery(sql("SELECT count(*) FROM `employees` WHERE `employees`.`age` > ?")).
		WithArgs(27).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(sql("SELECT * FROM `employees` WHERE `employees`.`age` > ? ORDER BY `employees`.`name` DESC LIMIT ? OFFSET ?")).
		WithArgs(27, 2, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age"}).AddRow(3, "Cid", 40))

	page, err := prepared.OrderBy("Name", storagemodels.Desc).Paginate(ctx, storagemodels.PaginationParams{CurrentPage: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.TotalItems)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Cid", page.Items[0].Name)

	mock.ExpectRollback()
	require.NoError(t, c.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCriteriaAndRawQueries(t *testing.T) {
	cf, mock := startFactory(t)

	mock.ExpectBegin()
	c, ctx := begin(t, cf)

	prepared, err := entitywork.Fulfill[*query.Prepared[Employee]](ctx, c, sqlstore.NewCriteria[Employee]().Where("age > ?", 27))
	require.NoError(t, err)
	mock.ExpectQuery(sql("SELECT * FROM `employees` WHERE age > ?")).
		WithArgs(27).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age"}).AddRow(1, "Bar", 30))
	items, err := prepared.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Bar", items[0].Name)

	type ageGroup struct {
		Age   int
		Total int
	}
	mock.ExpectQuery(sql("SELECT age, COUNT(*) AS total FROM employees GROUP BY age")).
		WillReturnRows(sqlmock.NewRows([]string{"age", "total"}).AddRow(30, 2).AddRow(40, 1))
	groups, err := entitywork.Fulfill[[]ageGroup](ctx, c, sqlstore.NewRaw[ageGroup]("SELECT age, COUNT(*) AS total FROM employees GROUP BY age"))
	require.NoError(t, err)
	assert.Equal(t, []ageGroup{{30, 2}, {40, 1}}, groups)

	mock.ExpectRollback()
	require.NoError(t, c.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitFailures(t *testing.T) {
	tests := []struct {
		name   string
		act    func(ctx context.Context, c *entitywork.Context) error
		expect func(mock sqlmock.Sqlmock)
		check  func(t *testing.T, err error)
	}{
		{
			name: "duplicate key",
			act: func(ctx context.Context, c *entitywork.Context) error {
				return c.Add(ctx, &Employee{ID: 7, Name: "Ann"})
			},
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(sql("INSERT INTO `employees`")).WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"})
			},
			check: func(t *testing.T, err error) { assert.True(t, errors.IsAlreadyExists(err), "got %v", err) },
		},
		{
			name: "removing a missing row",
			act: func(ctx context.Context, c *entitywork.Context) error {
				return c.Remove(ctx, &Employee{ID: 9})
			},
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(sql("DELETE FROM `employees` WHERE `employees`.`id` = ?")).WithArgs(9).WillReturnResult(sqlmock.NewResult(0, 0))
			},
			check: func(t *testing.T, err error) { assert.True(t, errors.IsNotFound(err), "got %v", err) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cf, mock := startFactory(t)

			mock.ExpectBegin()
			c, ctx := begin(t, cf)
			require.NoError(t, tt.act(ctx, c))

			tt.expect(mock)
			mock.ExpectRollback()
			err := c.Commit(ctx)
			tt.check(t, err)
			assert.False(t, c.IsReady())
			require.NoError(t, c.Close())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFailedFlushBeforeReadFailsCommit(t *testing.T) {
	cf, mock := startFactory(t)

	mock.ExpectBegin()
	c, ctx := begin(t, cf)
	require.NoError(t, c.Add(ctx, &Employee{ID: 7, Name: "Dup"}))
	require.NoError(t, c.Add(ctx, &Employee{ID: 8, Name: "B"}))

	dup := &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}
	mock.ExpectExec(sql("INSERT INTO `employees`")).WillReturnError(dup)
	_, err := entitywork.Get[Employee](ctx, c, 8)
	assert.True(t, errors.IsAlreadyExists(err), "got %v", err)

	mock.ExpectExec(sql("INSERT INTO `employees`")).WillReturnError(dup)
	mock.ExpectRollback()
	err = c.Commit(ctx)
	assert.True(t, errors.IsAlreadyExists(err), "got %v", err)
	assert.False(t, c.IsReady())
	require.NoError(t, c.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchLeavesForeignQueriesAlone(t *testing.T) {
	cf, mock := startFactory(t)

	mock.ExpectBegin()
	c, ctx := begin(t, cf)

	_, err := c.Fulfill(ctx, query.New[testmodels.Department]())
	assert.True(t, errors.IsNoSuitableProvider(err))

	mock.ExpectRollback()
	require.NoError(t, c.Close())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   config.SQLConfig
		opts  []sqlstore.Option
		field string
	}{
		{"no types", config.SQLConfig{Host: "db", Username: "app", Database: "staff"}, nil, "settings.Types"},
		{"no host", config.SQLConfig{Username: "app", Database: "staff"}, []sqlstore.Option{sqlstore.WithTypes(reflect.TypeFor[Employee]())}, "connection.Host"},
		{"no database", config.SQLConfig{Host: "db", Username: "app"}, []sqlstore.Option{sqlstore.WithTypes(reflect.TypeFor[Employee]())}, "connection.Database"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sqlstore.NewFactory(tt.cfg, tt.opts...).Validate()
			var cerr *errors.ConfigurationError
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.Equal(t, "sql", cerr.Component)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}

	valid := sqlstore.NewFactory(config.SQLConfig{Host: "db", Username: "app", Database: "staff"}, sqlstore.WithTypes(reflect.TypeFor[Employee]()))
	assert.NoError(t, valid.Validate())
}

func TestStartFailsWhenPingFails(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()

	sf := sqlstore.NewFactory(config.SQLConfig{LogLevel: "silent"},
		sqlstore.WithDialector(mysql.New(mysql.Config{Conn: conn, SkipInitializeWithVersion: true})),
		sqlstore.WithTypes(reflect.TypeFor[Employee]()),
	)
	cf := entitywork.NewContextFactory(entitywork.WithProviderFactories(sf), entitywork.WithLogger(zaptest.NewLogger(t)))

	err = cf.Start(context.Background())
	assert.True(t, errors.IsStartupFailed(err))
	assert.Contains(t, err.Error(), "pinging database")
	assert.False(t, cf.IsReady())
}
