/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqlstore

import (
	"context"
	"database/sql"
	"reflect"
	"sync"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/suparena/entitywork"
	"github.com/suparena/entitywork/config"
	"github.com/suparena/entitywork/datastore"
	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/logger"
	"github.com/suparena/entitywork/query"
	"github.com/suparena/entitywork/registry"
)

type settings struct {
	Name  string `validate:"required"`
	Types int    `validate:"gt=0"`
}

type connection struct {
	Host     string `validate:"required"`
	Username string `validate:"required"`
	Database string `validate:"required"`
}

// Factory opens one gorm pool and creates providers that share it.
type Factory struct {
	name      string
	cfg       config.SQLConfig
	dialector gorm.Dialector
	types     *datastore.TypeSet
	log       *zap.Logger

	db      *gorm.DB
	schemas sync.Map
}

// Option configures a Factory.
type Option func(*Factory)

// WithName overrides the factory name "sql".
func WithName(name string) Option {
	return func(f *Factory) { f.name = name }
}

// WithTypes registers the mapped entity types. Interface types claim every implementing entity.
func WithTypes(types ...reflect.Type) Option {
	return func(f *Factory) {
		for _, t := range types {
			f.types.Add(t)
		}
	}
}

// WithDialector replaces the MySQL dialector built from the configured DSN.
func WithDialector(d gorm.Dialector) Option {
	return func(f *Factory) { f.dialector = d }
}

func NewFactory(cfg config.SQLConfig, opts ...Option) *Factory {
	f := &Factory{
		name:  "sql",
		cfg:   cfg,
		types: datastore.NewTypeSet(),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Factory) Name() string { return f.name }

// DB is the pool opened by Start.
func (f *Factory) DB() *gorm.DB { return f.db }

func (f *Factory) Validate() error {
	if err := entitywork.ValidateConfig(f.name, settings{Name: f.name, Types: f.types.Len()}); err != nil {
		return err
	}
	if f.dialector != nil {
		return nil
	}
	return entitywork.ValidateConfig(f.name, connection{Host: f.cfg.Host, Username: f.cfg.Username, Database: f.cfg.Database})
}

func (f *Factory) Start(ctx context.Context, cf *entitywork.ContextFactory) error {
	f.log = cf.Logger().Named(f.name)
	defer logger.Timed(f.log, "sql provider factory started", zap.String("host", f.cfg.Host))()

	dialector := f.dialector
	if dialector == nil {
		dialector = mysql.Open(f.cfg.DSN())
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.NewGormAdapter(f.log, logger.ParseGormLevel(f.cfg.LogLevel), f.cfg.SlowThreshold),
		SkipDefaultTransaction: true,
		TranslateError:         true,
		DisableAutomaticPing:   true,
	})
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "getting database handle")
	}
	if f.cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(f.cfg.MaxOpenConns)
	}
	if f.cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(f.cfg.MaxIdleConns)
	}
	if f.cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(f.cfg.ConnMaxLifetime)
	}
	if f.cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(f.cfg.ConnMaxIdleTime)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return errors.Wrap(err, "pinging database")
	}
	f.db = db

	models := make([]any, 0, f.types.Len())
	for _, t := range f.types.Types() {
		if _, err := f.schema(t); err != nil {
			_ = sqlDB.Close()
			return err
		}
		models = append(models, reflect.New(t).Interface())
	}
	if f.cfg.AutoMigrate && len(models) > 0 {
		if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
			_ = sqlDB.Close()
			return errors.Wrap(err, "migrating schema")
		}
	}
	return nil
}

// schema returns the cached gorm schema of entity type t.
func (f *Factory) schema(t reflect.Type) (*schema.Schema, error) {
	t = registry.Indirect(t)
	sch, err := schema.Parse(reflect.New(t).Interface(), &f.schemas, f.db.NamingStrategy)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing schema of %s", registry.TypeName(t))
	}
	return sch, nil
}

func (f *Factory) CreateProvider(c *entitywork.Context) (entitywork.Provider, error) {
	return &Provider{factory: f, log: f.log.With(zap.Stringer("context", c.ID()))}, nil
}

func (f *Factory) Close() error {
	if f.db == nil {
		return nil
	}
	sqlDB, err := f.db.DB()
	if err != nil {
		return err
	}
	f.log.Debug("closing database pool")
	return sqlDB.Close()
}

// txSession is the enlisted resource: one gorm transaction per root transaction.
type txSession struct {
	tx *gorm.DB
}

func (s *txSession) Commit(context.Context) error {
	return s.tx.Commit().Error
}

func (s *txSession) Rollback(context.Context) error {
	if err := s.tx.Rollback().Error; err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// Provider writes through the gorm transaction of its Context, queueing Add and Remove until
// the next read or commit.
type Provider struct {
	factory *Factory
	log     *zap.Logger
	sess    *txSession
	pending datastore.Pending
}

func (p *Provider) TakesCareOf(t reflect.Type) bool {
	if t.Implements(rawType) {
		return true
	}
	if _, ok := query.TargetOf(t); ok && !t.Implements(criteriaType) && !datastore.IsCompilable(t) {
		return false
	}
	return p.factory.types.TakesCareOf(t)
}

func (p *Provider) TransactionStarted(ctx context.Context, tx *entitywork.Transaction) error {
	res, err := tx.Enlist(ctx, "sql:"+p.factory.name, func(ctx context.Context, opts entitywork.TxOptions) (entitywork.Resource, error) {
		gtx := p.factory.db.WithContext(ctx).Begin(opts.SQL())
		if gtx.Error != nil {
			return nil, errors.Wrap(gtx.Error, "beginning transaction")
		}
		return &txSession{tx: gtx}, nil
	})
	if err != nil {
		return err
	}
	p.sess = res.(*txSession)
	return nil
}

func (p *Provider) TransactionCommitting(ctx context.Context) error {
	return p.Flush(ctx)
}

func (p *Provider) session(ctx context.Context, operation string) (*gorm.DB, error) {
	if p.sess == nil {
		return nil, errors.NewStateError(p.factory.name+" provider", "not enlisted", operation)
	}
	return p.sess.tx.WithContext(ctx), nil
}

func (p *Provider) Add(ctx context.Context, entity any) error {
	if _, err := p.session(ctx, "add"); err != nil {
		return err
	}
	v := reflect.ValueOf(entity)
	info, err := registry.Describe(v.Type())
	if err != nil {
		return err
	}
	// integer keys are left to AUTO_INCREMENT
	if id, ok := info.IDValue(v); ok && !id.CanInt() && !id.CanUint() {
		if _, err := datastore.AssignID(info, v, nil); err != nil {
			return err
		}
	}
	p.pending.Push(datastore.OpAdd, entity)
	return nil
}

func (p *Provider) Remove(ctx context.Context, entity any) error {
	if _, err := p.session(ctx, "remove"); err != nil {
		return err
	}
	p.pending.Push(datastore.OpRemove, entity)
	return nil
}

// Flush executes queued writes in order on the transaction.
func (p *Provider) Flush(ctx context.Context) error {
	db, err := p.session(ctx, "flush")
	if err != nil {
		return err
	}
	n, err := p.pending.Apply(func(op datastore.Op) error {
		return apply(db, op)
	})
	if n > 0 {
		p.log.Debug("flushed pending writes", zap.Int("ops", n))
	}
	return err
}

func apply(db *gorm.DB, op datastore.Op) error {
	t := reflect.TypeOf(op.Entity).Elem()
	switch op.Kind {
	case datastore.OpAdd:
		if err := db.Create(op.Entity).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errors.NewAlreadyExistsError(registry.TypeName(t), identity(op.Entity))
			}
			return errors.Wrapf(err, "inserting %s", registry.TypeName(t))
		}
	case datastore.OpRemove:
		res := db.Delete(op.Entity)
		if res.Error != nil {
			return errors.Wrapf(res.Error, "deleting %s", registry.TypeName(t))
		}
		if res.RowsAffected == 0 {
			return errors.NewNotFoundError(registry.TypeName(t), identity(op.Entity))
		}
	}
	return nil
}

func identity(entity any) string {
	v := reflect.ValueOf(entity)
	info, err := registry.Describe(v.Type())
	if err != nil {
		return ""
	}
	id, ok := info.IDValue(v)
	if !ok {
		return ""
	}
	return datastore.Key(id.Interface())
}

func (p *Provider) Get(ctx context.Context, dest any, id any) (bool, error) {
	if err := p.Flush(ctx); err != nil {
		return false, err
	}
	sch, err := p.factory.schema(reflect.TypeOf(dest))
	if err != nil {
		return false, err
	}
	if sch.PrioritizedPrimaryField == nil {
		return false, errors.NewValidationError(sch.Name, "entity has no primary key")
	}
	db, _ := p.session(ctx, "get")
	err = db.Where(clause.Eq{
		Column: clause.Column{Table: clause.CurrentTable, Name: sch.PrioritizedPrimaryField.DBName},
		Value:  id,
	}).Take(dest).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	case err != nil:
		return false, errors.Wrapf(err, "loading %s %v", sch.Name, id)
	}
	return true, nil
}

func (p *Provider) Fulfill(ctx context.Context, q any) (any, error) {
	if _, err := p.session(ctx, "fulfill"); err != nil {
		return nil, err
	}
	switch q := q.(type) {
	case raw:
		if err := p.Flush(ctx); err != nil {
			return nil, errors.Wrap(err, "flushing before read")
		}
		db, _ := p.session(ctx, "fulfill")
		return q.run(ctx, db)
	case criteria:
		sch, err := p.factory.schema(q.EntityType())
		if err != nil {
			return nil, err
		}
		st := &statement{provider: p, sch: sch, scopes: q.scopeFuncs()}
		return q.Prepare(st, query.FlushFunc(p.Flush)), nil
	}

	c, err := datastore.Compile(q)
	if err != nil {
		return nil, err
	}
	sch, err := p.factory.schema(c.EntityType())
	if err != nil {
		return nil, err
	}
	comp := &compiler{db: p.factory.db}
	conds, err := comp.where(sch, sch.Table, c.Nodes())
	if err != nil {
		return nil, errors.Wrapf(err, "compiling query on %s", sch.Name)
	}
	return c.Prepare(&statement{provider: p, sch: sch, conds: conds}, query.FlushFunc(p.Flush)), nil
}

func (p *Provider) CreateQuery(_ context.Context, t reflect.Type) (any, error) {
	if t.Kind() == reflect.Pointer && t.Implements(criteriaType) {
		return reflect.New(t.Elem()).Interface(), nil
	}
	return datastore.NewQuery(t)
}

func (p *Provider) Close() error {
	if n := len(p.pending.Drain()); n > 0 {
		p.log.Debug("discarding unflushed writes", zap.Int("ops", n))
	}
	p.sess = nil
	return nil
}
