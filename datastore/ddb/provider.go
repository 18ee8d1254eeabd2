/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/suparena/entitywork"
	"github.com/suparena/entitywork/config"
	"github.com/suparena/entitywork/datastore"
	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/logger"
	"github.com/suparena/entitywork/query"
	"github.com/suparena/entitywork/registry"
	"github.com/suparena/entitywork/storagemodels"
)

type settings struct {
	Name  string `validate:"required"`
	Table string `validate:"required"`
	Types int    `validate:"gt=0"`
}

type connection struct {
	Region string `validate:"required"`
}

// Factory holds the DynamoDB client and creates providers that stage their writes per
// transaction.
type Factory struct {
	name   string
	cfg    config.DynamoDBConfig
	client API
	types  *datastore.TypeSet
	scan   storagemodels.ScanOptions
	log    *zap.Logger
}

// Option configures a Factory.
type Option func(*Factory)

// WithName overrides the factory name "dynamodb".
func WithName(name string) Option {
	return func(f *Factory) { f.name = name }
}

// WithTypes registers entity types. Each concrete type needs an index map in the registry.
func WithTypes(types ...reflect.Type) Option {
	return func(f *Factory) {
		for _, t := range types {
			f.types.Add(t)
		}
	}
}

// WithClient replaces the client built from the configuration.
func WithClient(client API) Option {
	return func(f *Factory) { f.client = client }
}

// WithScanOptions adjusts how queries page through the table.
func WithScanOptions(opts ...storagemodels.ScanOption) Option {
	return func(f *Factory) {
		for _, opt := range opts {
			opt(&f.scan)
		}
	}
}

func NewFactory(cfg config.DynamoDBConfig, opts ...Option) *Factory {
	f := &Factory{
		name:  "dynamodb",
		cfg:   cfg,
		types: datastore.NewTypeSet(),
		log:   zap.NewNop(),
	}
	var defaults []storagemodels.ScanOption
	if cfg.ScanPageSize > 0 {
		defaults = append(defaults, storagemodels.WithPageSize(cfg.ScanPageSize))
	}
	defaults = append(defaults, storagemodels.WithConsistentRead(cfg.ConsistentRead))
	f.scan = storagemodels.ApplyScanOptions(defaults...)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Factory) Name() string { return f.name }

// Client is the client in use, available after Start.
func (f *Factory) Client() API { return f.client }

func (f *Factory) Validate() error {
	if err := entitywork.ValidateConfig(f.name, settings{Name: f.name, Table: f.cfg.Table, Types: f.types.Len()}); err != nil {
		return err
	}
	if f.client == nil {
		if err := entitywork.ValidateConfig(f.name, connection{Region: f.cfg.Region}); err != nil {
			return err
		}
	}
	for _, t := range f.types.Types() {
		indexMap, ok := registry.IndexMapFor(t)
		if !ok {
			return errors.NewConfigurationError(f.name, registry.TypeName(t), errors.ErrNoIndexMap.Error())
		}
		if indexMap["PK"] == "" || indexMap["SK"] == "" {
			return errors.NewConfigurationError(f.name, registry.TypeName(t), "index map must define PK and SK")
		}
	}
	return nil
}

func (f *Factory) Start(ctx context.Context, cf *entitywork.ContextFactory) error {
	f.log = cf.Logger().Named(f.name)
	defer logger.Timed(f.log, "dynamodb provider factory started", zap.String("table", f.cfg.Table))()

	if f.client == nil {
		client, err := NewClient(ctx, f.cfg)
		if err != nil {
			return err
		}
		f.client = client
	}
	if _, err := f.client.DescribeTable(ctx, &sdk.DescribeTableInput{TableName: aws.String(f.cfg.Table)}); err != nil {
		return errors.Wrapf(err, "describing table %s", f.cfg.Table)
	}
	return nil
}

func (f *Factory) CreateProvider(c *entitywork.Context) (entitywork.Provider, error) {
	return &Provider{factory: f, log: f.log.With(zap.Stringer("context", c.ID()))}, nil
}

func (f *Factory) Close() error { return nil }

// Provider queues the writes of one Context and stages them in the batch of its transaction.
type Provider struct {
	factory *Factory
	log     *zap.Logger
	b       *batch
	pending datastore.Pending
}

func (p *Provider) TakesCareOf(t reflect.Type) bool {
	if _, ok := query.TargetOf(t); ok && !datastore.IsCompilable(t) {
		return false
	}
	return p.factory.types.TakesCareOf(t)
}

func (p *Provider) TransactionStarted(ctx context.Context, tx *entitywork.Transaction) error {
	res, err := tx.Enlist(ctx, "dynamodb:"+p.factory.name, func(context.Context, entitywork.TxOptions) (entitywork.Resource, error) {
		return newBatch(p.factory.client, p.factory.log), nil
	})
	if err != nil {
		return err
	}
	p.b = res.(*batch)
	return nil
}

func (p *Provider) TransactionCommitting(ctx context.Context) error {
	return p.Flush(ctx)
}

func (p *Provider) enlisted(operation string) error {
	if p.b == nil {
		return errors.NewStateError(p.factory.name+" provider", "not enlisted", operation)
	}
	return nil
}

// Add assigns string and UUID identities. Integer identities must be set by the caller since
// the table has no sequence.
func (p *Provider) Add(_ context.Context, entity any) error {
	if err := p.enlisted("add"); err != nil {
		return err
	}
	v := reflect.ValueOf(entity)
	info, err := registry.Describe(v.Elem().Type())
	if err != nil {
		return err
	}
	if id, ok := info.IDValue(v); ok && id.IsZero() && (id.CanInt() || id.CanUint()) {
		return errors.NewValidationError(info.ID.Name, "integer identities must be assigned before adding to DynamoDB")
	}
	if _, err := datastore.AssignID(info, v, nil); err != nil {
		return err
	}
	p.pending.Push(datastore.OpAdd, entity)
	return nil
}

func (p *Provider) Remove(_ context.Context, entity any) error {
	if err := p.enlisted("remove"); err != nil {
		return err
	}
	p.pending.Push(datastore.OpRemove, entity)
	return nil
}

// Flush stages queued writes in the transaction's batch.
func (p *Provider) Flush(context.Context) error {
	if err := p.enlisted("flush"); err != nil {
		return err
	}
	n, err := p.pending.Apply(func(op datastore.Op) error {
		w, err := p.stage(op)
		if err != nil {
			return err
		}
		if op.Kind == datastore.OpAdd {
			return p.b.put(w)
		}
		return p.b.delete(w)
	})
	if n > 0 {
		p.log.Debug("staged pending writes", zap.Int("ops", n))
	}
	return err
}

func (p *Provider) stage(op datastore.Op) (*write, error) {
	v := reflect.ValueOf(op.Entity)
	t := v.Elem().Type()
	info, err := registry.Describe(t)
	if err != nil {
		return nil, err
	}
	id, ok := info.IDValue(v)
	if !ok {
		return nil, errors.NewValidationError(info.Name, "entity has no identity field")
	}
	indexMap, ok := registry.IndexMapFor(t)
	if !ok {
		return nil, errors.Wrap(errors.ErrNoIndexMap, registry.TypeName(t))
	}
	expanded, err := expandMacros(indexMap, op.Entity)
	if err != nil {
		return nil, err
	}
	key, err := buildKeyFromExpanded(expanded)
	if err != nil {
		return nil, err
	}
	w := &write{key: itemKey(expanded), typ: t, id: datastore.Key(id.Interface())}
	table := aws.String(p.factory.cfg.Table)

	if op.Kind == datastore.OpRemove {
		w.item.Delete = &types.Delete{
			TableName:           table,
			Key:                 key,
			ConditionExpression: aws.String("attribute_exists(PK)"),
		}
		return w, nil
	}

	item, err := attributevalue.MarshalMap(op.Entity)
	if err != nil {
		return nil, errors.Wrapf(err, "marshaling %s", registry.TypeName(t))
	}
	// GSI keys are written alongside the primary key
	for attr, value := range expanded {
		if value != "" {
			item[attr] = &types.AttributeValueMemberS{Value: value}
		}
	}
	item[EntityTypeAttribute] = &types.AttributeValueMemberS{Value: registry.TypeName(t)}
	w.entity = op.Entity
	w.item.Put = &types.Put{
		TableName:           table,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	}
	return w, nil
}

// Get reads the staged writes of the transaction first, then the table. Every macro of the
// type's index map is filled with the identifier.
func (p *Provider) Get(ctx context.Context, dest any, id any) (bool, error) {
	if err := p.Flush(ctx); err != nil {
		return false, err
	}
	dv := reflect.ValueOf(dest)
	t := dv.Elem().Type()
	indexMap, ok := registry.IndexMapFor(t)
	if !ok {
		return false, errors.Wrap(errors.ErrNoIndexMap, registry.TypeName(t))
	}
	expanded := expandStringKey(indexMap, datastore.Key(id))
	if w, ok := p.b.lookup(itemKey(expanded)); ok && w.typ == t {
		if w.deleted() {
			return false, nil
		}
		dv.Elem().Set(reflect.ValueOf(w.entity).Elem())
		return true, nil
	}

	key, err := buildKeyFromExpanded(expanded)
	if err != nil {
		return false, err
	}
	out, err := p.factory.client.GetItem(ctx, &sdk.GetItemInput{
		TableName:      aws.String(p.factory.cfg.Table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, errors.Wrapf(err, "getting %s %v", registry.TypeName(t), id)
	}
	if len(out.Item) == 0 {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(out.Item, dest); err != nil {
		return false, errors.Wrapf(err, "unmarshaling %s", registry.TypeName(t))
	}
	return true, nil
}

// Fulfill compiles q to a Scan filter. Matching rows are overlaid with the staged writes, then
// ordered and windowed in memory.
func (p *Provider) Fulfill(_ context.Context, q any) (any, error) {
	if err := p.enlisted("fulfill"); err != nil {
		return nil, err
	}
	c, err := datastore.Compile(q)
	if err != nil {
		return nil, err
	}
	t := c.EntityType()
	f, err := compileFilter(registry.TypeName(t), c.Nodes())
	if err != nil {
		return nil, err
	}
	st, err := query.NewEvaluated(t, c.Nodes(), func(ctx context.Context) ([]any, error) {
		return p.scan(ctx, t, f)
	})
	if err != nil {
		return nil, err
	}
	return c.Prepare(st, query.FlushFunc(p.Flush)), nil
}

func (p *Provider) scan(ctx context.Context, t reflect.Type, f *filter) ([]any, error) {
	opts := p.factory.scan
	name := registry.TypeName(t)
	in := &sdk.ScanInput{
		TableName:                 aws.String(p.factory.cfg.Table),
		FilterExpression:          aws.String(f.Expression()),
		ExpressionAttributeNames:  f.names,
		ExpressionAttributeValues: f.values,
		ConsistentRead:            aws.Bool(opts.ConsistentRead),
	}
	if opts.PageSize > 0 {
		in.Limit = aws.Int32(opts.PageSize)
	}

	touched, staged := p.b.staged(t)
	var rows []any
	pages := 0
	for {
		out, err := p.factory.client.Scan(ctx, in)
		if err != nil {
			return nil, errors.Wrapf(err, "scanning %s", name)
		}
		pages++
		for _, item := range out.Items {
			if et, ok := item[EntityTypeAttribute].(*types.AttributeValueMemberS); !ok || et.Value != name {
				continue
			}
			if touched[primaryKeyOf(item)] {
				continue
			}
			row := reflect.New(t)
			if err := attributevalue.UnmarshalMap(item, row.Interface()); err != nil {
				return nil, errors.Wrapf(err, "unmarshaling %s", name)
			}
			rows = append(rows, row.Interface())
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		if opts.MaxPages > 0 && pages >= opts.MaxPages {
			p.log.Warn("scan stopped at the page limit", zap.String("type", name), zap.Int("pages", pages))
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	p.log.Debug("scanned table", zap.String("type", name), zap.Int("pages", pages), zap.Int("rows", len(rows)))
	return append(rows, staged...), nil
}

func primaryKeyOf(item map[string]types.AttributeValue) string {
	var pk, sk string
	if v, ok := item["PK"].(*types.AttributeValueMemberS); ok {
		pk = v.Value
	}
	if v, ok := item["SK"].(*types.AttributeValueMemberS); ok {
		sk = v.Value
	}
	return itemKey(map[string]string{"PK": pk, "SK": sk})
}

func (p *Provider) CreateQuery(_ context.Context, t reflect.Type) (any, error) {
	return datastore.NewQuery(t)
}

func (p *Provider) Close() error {
	if n := len(p.pending.Drain()); n > 0 {
		p.log.Debug("discarding unflushed writes", zap.Int("ops", n))
	}
	p.b = nil
	return nil
}
