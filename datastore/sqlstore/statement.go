/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqlstore

import (
	"context"
	"reflect"
	"slices"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/query"
	"github.com/suparena/entitywork/storagemodels"
)

// statement is the gorm query.Statement. Conditions are compiled once; every List or Count
// starts a fresh chain on the provider's session.
type statement struct {
	provider *Provider
	sch      *schema.Schema
	conds    []clause.Expression
	scopes   []func(*gorm.DB) *gorm.DB
	preloads []string
	orders   []storagemodels.Order
}

func (s *statement) Clone() query.Statement {
	c := *s
	c.preloads = slices.Clone(s.preloads)
	c.orders = slices.Clone(s.orders)
	return &c
}

func (s *statement) Fetch(path string) error {
	if err := preload(s.sch, path); err != nil {
		return err
	}
	s.preloads = append(s.preloads, path)
	return nil
}

func (s *statement) OrderBy(o storagemodels.Order) error {
	if _, err := query.ResolvePath(s.sch.ModelType, o.Path); err != nil {
		return err
	}
	s.orders = append(s.orders, o)
	return nil
}

func (s *statement) chain(ctx context.Context) (*gorm.DB, error) {
	db, err := s.provider.session(ctx, "query")
	if err != nil {
		return nil, err
	}
	db = db.Model(reflect.New(s.sch.ModelType).Interface())
	if len(s.conds) > 0 {
		db = db.Where(clause.And(s.conds...))
	}
	if len(s.scopes) > 0 {
		db = db.Scopes(s.scopes...)
	}
	return db, nil
}

func (s *statement) List(ctx context.Context, offset, limit int, dest any) error {
	db, err := s.chain(ctx)
	if err != nil {
		return err
	}
	for _, path := range s.preloads {
		db = db.Preload(path)
	}
	if len(s.orders) > 0 {
		c := &compiler{db: s.provider.factory.db}
		order, err := c.orderBy(s.sch, s.orders)
		if err != nil {
			return err
		}
		db = db.Order(order)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}
	if limit >= 0 {
		db = db.Limit(limit)
	}
	if err := db.Find(dest).Error; err != nil {
		return errors.Wrapf(err, "listing %s", s.sch.Name)
	}
	return nil
}

func (s *statement) Count(ctx context.Context) (int64, error) {
	db, err := s.chain(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Count(&n).Error; err != nil {
		return 0, errors.Wrapf(err, "counting %s", s.sch.Name)
	}
	return n, nil
}
