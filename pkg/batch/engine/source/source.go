// Package source enumerates the records a run processes. Local directory trees and
// paginated object-store listings share one lazy, finite and restartable interface.
package source

import (
	"context"
	"fmt"

	"github.com/tigerroll/recordbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/recordbatch/pkg/batch/core/config"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
)

// RecordSource yields RecordRefs in enumeration order. Next returns io.EOF once the
// sequence is exhausted. Positions are 0-based and continue from the resume point.
type RecordSource interface {
	// Resume positions the source after the records covered by cursor.
	// It must be called before the first Next.
	Resume(cursor model.ProgressCursor) error
	Next(ctx context.Context) (model.RecordRef, error)
	Close() error
}

// PartitionPrefixes splits base into one prefix per character of alphabet,
// e.g. ("data/", "AB") yields ["data/A", "data/B"]. The prefixes are disjoint.
func PartitionPrefixes(base, alphabet string) []string {
	seen := make(map[rune]bool, len(alphabet))
	prefixes := make([]string, 0, len(alphabet))
	for _, r := range alphabet {
		if seen[r] {
			continue
		}
		seen[r] = true
		prefixes = append(prefixes, base+string(r))
	}
	return prefixes
}

// NewRecordSource builds the source selected by cfg.Source.Kind. Remote sources resolve their
// lister through storages and retry page requests with enumerationPolicy.
func NewRecordSource(ctx context.Context, cfg config.SourceConfig, storages storage.StorageConnectionResolver, enumerationPolicy retry.RetryPolicy) (RecordSource, error) {
	switch cfg.Kind {
	case config.SourceKindLocal:
		return NewLocalSource(cfg.Local, cfg.PartitionPrefix, cfg.MaxRecords, cfg.BufferSize), nil
	case config.SourceKindRemote:
		if storages == nil {
			return nil, exception.NewConfigurationError("remote source requires a storage connection resolver")
		}
		conn, err := storages.ResolveStorageConnection(ctx, cfg.Remote.StorageRef)
		if err != nil {
			return nil, exception.NewEnumerationFailure(fmt.Sprintf("failed to resolve storage connection '%s'", cfg.Remote.StorageRef), err)
		}
		return NewRemoteSource(conn, cfg.Remote, cfg.PartitionPrefix, cfg.MaxRecords, enumerationPolicy), nil
	default:
		return nil, exception.NewConfigurationError("unsupported source kind '%s'", cfg.Kind)
	}
}
