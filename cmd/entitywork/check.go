/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/suparena/entitywork"
	"github.com/suparena/entitywork/config"
	"github.com/suparena/entitywork/datastore/ddb"
	"github.com/suparena/entitywork/datastore/memory"
	"github.com/suparena/entitywork/datastore/sqlstore"
	"github.com/suparena/entitywork/logger"
	"github.com/suparena/entitywork/registry"
)

// probe is registered with every provider so that validation has a type to check. It is
// never read or written.
type probe struct {
	ID string `gorm:"primaryKey;size:36"`
}

func init() {
	registry.RegisterIndexMap[probe](map[string]string{"PK": "PROBE#{ID}", "SK": "PROBE#{ID}"})
}

// newContextFactory builds a factory with the holder, transaction defaults and enabled
// providers of cfg.
func newContextFactory(cfg *config.Config, log *zap.Logger) *entitywork.ContextFactory {
	types := reflect.TypeFor[probe]()
	var factories []entitywork.ProviderFactory
	if cfg.Memory.Enabled {
		factories = append(factories, memory.NewFactory(memory.WithTypes(types)))
	}
	if cfg.SQL.Enabled {
		sqlCfg := cfg.SQL
		sqlCfg.AutoMigrate = false
		factories = append(factories, sqlstore.NewFactory(sqlCfg, sqlstore.WithTypes(types)))
	}
	if cfg.DynamoDB.Enabled {
		factories = append(factories, ddb.NewFactory(cfg.DynamoDB, ddb.WithTypes(types)))
	}

	opts := []entitywork.Option{
		entitywork.WithProviderFactories(factories...),
		entitywork.WithLogger(log),
		entitywork.WithDefaultTxOptions(entitywork.TxOptions{
			Isolation: cfg.Context.IsolationLevel(),
			ReadOnly:  cfg.Context.ReadOnly,
		}),
	}
	if cfg.Context.Holder == "shared" {
		opts = append(opts, entitywork.WithHolder(entitywork.NewSharedHolder()))
	}
	return entitywork.NewContextFactory(opts...)
}

func newCheckCommand(stdout io.Writer) *cobra.Command {
	var timeout time.Duration
	ccmd := &cobra.Command{
		Use:   "check",
		Short: "Start every configured provider and report failures",
		Long: `
Validates the configuration, starts every enabled provider factory (connecting to MySQL
and describing the DynamoDB table) and closes them again. All startup failures are
reported together.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync(log) }()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			cf := newContextFactory(cfg, log)
			if err := cf.Start(ctx); err != nil {
				return err
			}
			for _, pf := range cf.ProviderFactories() {
				fmt.Fprintf(stdout, "%s: ok\n", pf.Name())
			}
			return cf.Close()
		},
	}
	ccmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "time allowed for every provider to start")
	return ccmd
}
