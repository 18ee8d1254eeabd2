/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

// ScanOptions configures how a DynamoDB-backed query pages through a table.
type ScanOptions struct {
	PageSize       int32 `mapstructure:"page_size"`       // Items per DynamoDB page (default: 100)
	MaxPages       int   `mapstructure:"max_pages"`       // Stop after this many pages, 0 for no limit
	ConsistentRead bool  `mapstructure:"consistent_read"` // Strongly consistent scans
}

// ScanOption is a functional option for configuring scans
type ScanOption func(*ScanOptions)

// DefaultScanOptions returns default scan options
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		PageSize: 100,
	}
}

// ApplyScanOptions returns the defaults with opts applied in order.
func ApplyScanOptions(opts ...ScanOption) ScanOptions {
	o := DefaultScanOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithPageSize sets the DynamoDB page size
func WithPageSize(size int32) ScanOption {
	return func(opts *ScanOptions) {
		opts.PageSize = size
	}
}

// WithMaxPages bounds the number of pages read per query
func WithMaxPages(pages int) ScanOption {
	return func(opts *ScanOptions) {
		opts.MaxPages = pages
	}
}

// WithConsistentRead enables strongly consistent scans
func WithConsistentRead(consistent bool) ScanOption {
	return func(opts *ScanOptions) {
		opts.ConsistentRead = consistent
	}
}
