// Package core defines the shared language of the medallion pipeline.
//
// This package contains:
//   - Run identity (RunMetadata)
//   - Stage results passed between pipeline stages (StageResult, Outcome)
//   - Table store configuration and metadata (AdapterConfig, Column, Dialect)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
