/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package memory

// WithAddError makes Add fail with err.
func WithAddError(err error) Option {
	return func(f *Factory) { f.addErr = err }
}

// WithRemoveError makes Remove fail with err.
func WithRemoveError(err error) Option {
	return func(f *Factory) { f.removeErr = err }
}

// WithCommitError makes every commit fail with err.
func WithCommitError(err error) Option {
	return func(f *Factory) { f.commitErr = err }
}
