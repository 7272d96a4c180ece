package source_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/recordbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/recordbatch/pkg/batch/core/config"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/engine/source"
	"github.com/tigerroll/recordbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/recordbatch/pkg/batch/test"
)

func fastPolicy(attempts int) retry.RetryPolicy {
	return retry.NewDefaultRetryPolicyFactory().Create(config.RetryConfig{MaxAttempts: attempts, InitialInterval: 1, Factor: 1}, nil)
}

var msd = config.RemoteSourceConfig{StorageRef: "remote", Bucket: "msd", Prefix: "data/", PageSize: 2}

func TestRemoteSource_ConcatenatesPages(t *testing.T) {
	store := test.NewMemoryStore()
	store.Pages = []storage.Page{
		{Keys: []string{"data/A/a.h5", "data/A/b.h5"}, NextToken: "t1", Truncated: true},
		{Keys: []string{"data/B/c.h5"}},
	}
	src := source.NewRemoteSource(store, msd, "", 0, fastPolicy(1))

	refs := drain(t, src)
	require.Len(t, refs, 3)
	assert.Equal(t, "data/A/a.h5", refs[0].ID)
	assert.Equal(t, "data/A/b.h5", refs[1].ID)
	assert.Equal(t, "data/B/c.h5", refs[2].ID)
	assert.Equal(t, int64(2), refs[2].Position)
	assert.Equal(t, "msd", refs[2].Bucket)
	assert.Equal(t, model.RecordKindRemote, refs[2].Kind)

	require.Len(t, store.ListCalls, 2)
	assert.Equal(t, "", store.ListCalls[0].Token)
	assert.Equal(t, "t1", store.ListCalls[1].Token)
	assert.Equal(t, 2, store.ListCalls[0].MaxKeys)
}

func TestRemoteSource_LazyPaging(t *testing.T) {
	store := test.NewMemoryStore()
	for _, k := range []string{"data/1.h5", "data/2.h5", "data/3.h5", "other/x.h5"} {
		store.Put("msd", k, []byte("x"))
	}
	src := source.NewRemoteSource(store, msd, "", 0, fastPolicy(1))

	_, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, store.ListCalls, 1)

	refs := drain(t, src)
	assert.Len(t, refs, 2)
	assert.Equal(t, "data/3.h5", refs[1].ID)
}

func TestRemoteSource_Resume(t *testing.T) {
	store := test.NewMemoryStore()
	for _, k := range []string{"data/1.h5", "data/2.h5", "data/3.h5"} {
		store.Put("msd", k, []byte("x"))
	}
	src := source.NewRemoteSource(store, msd, "", 0, fastPolicy(1))
	require.NoError(t, src.Resume(model.ProgressCursor{RecordsConsumed: 2, LastRef: "data/2.h5"}))

	refs := drain(t, src)
	require.Len(t, refs, 1)
	assert.Equal(t, "data/3.h5", refs[0].ID)
	assert.Equal(t, int64(2), refs[0].Position)
	assert.Equal(t, "data/2.h5", store.ListCalls[0].StartAfter)
}

func TestRemoteSource_ResumeFromPosition(t *testing.T) {
	store := test.NewMemoryStore()
	for _, k := range []string{"data/1.h5", "data/2.h5", "data/3.h5"} {
		store.Put("msd", k, []byte("x"))
	}
	src := source.NewRemoteSource(store, msd, "", 0, fastPolicy(1))
	require.NoError(t, src.Resume(model.ProgressCursor{RecordsConsumed: 1}))

	refs := drain(t, src)
	require.Len(t, refs, 2)
	assert.Equal(t, "data/2.h5", refs[0].ID)
	assert.Equal(t, int64(1), refs[0].Position)
	assert.Equal(t, "", store.ListCalls[0].StartAfter)
}

func TestRemoteSource_Partition(t *testing.T) {
	store := test.NewMemoryStore()
	for _, k := range []string{"data/A/1.h5", "data/B/2.h5"} {
		store.Put("msd", k, []byte("x"))
	}
	src := source.NewRemoteSource(store, msd, "B", 0, fastPolicy(1))

	refs := drain(t, src)
	require.Len(t, refs, 1)
	assert.Equal(t, "data/B/2.h5", refs[0].ID)
	assert.Equal(t, "data/B", store.ListCalls[0].Prefix)
}

func TestRemoteSource_EmptyListing(t *testing.T) {
	src := source.NewRemoteSource(test.NewMemoryStore(), msd, "", 0, fastPolicy(1))
	assert.Empty(t, drain(t, src))
}

func TestRemoteSource_RetriesListing(t *testing.T) {
	store := test.NewMemoryStore()
	store.Put("msd", "data/1.h5", []byte("x"))
	store.ListErrs = []error{errors.New("connection reset"), errors.New("503 slow down")}

	src := source.NewRemoteSource(store, msd, "", 0, fastPolicy(3))
	refs := drain(t, src)
	assert.Len(t, refs, 1)
	assert.Len(t, store.ListCalls, 3)
}

func TestRemoteSource_ListingExhausted(t *testing.T) {
	store := test.NewMemoryStore()
	store.ListErrs = []error{errors.New("a"), errors.New("b"), errors.New("c")}

	src := source.NewRemoteSource(store, msd, "", 0, fastPolicy(2))
	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, exception.ErrEnumeration)
	assert.True(t, exception.IsErrorOfType(err, exception.EnumerationFailure))
	assert.Len(t, store.ListCalls, 2)
}

func TestRemoteSource_MaxRecords(t *testing.T) {
	store := test.NewMemoryStore()
	for _, k := range []string{"data/1.h5", "data/2.h5", "data/3.h5"} {
		store.Put("msd", k, []byte("x"))
	}
	src := source.NewRemoteSource(store, msd, "", 1, fastPolicy(1))
	assert.Len(t, drain(t, src), 1)
}

func TestPartitionPrefixes(t *testing.T) {
	assert.Equal(t, []string{"data/A", "data/B", "data/C"}, source.PartitionPrefixes("data/", "ABCA"))
	assert.Empty(t, source.PartitionPrefixes("data/", ""))
}

func TestNewRecordSource(t *testing.T) {
	store := test.NewMemoryStore()
	resolver := &test.StaticStorageResolver{Conn: store}

	src, err := source.NewRecordSource(context.Background(), config.SourceConfig{Kind: "remote", Remote: msd}, resolver, fastPolicy(1))
	require.NoError(t, err)
	assert.IsType(t, &source.RemoteSource{}, src)

	src, err = source.NewRecordSource(context.Background(), config.SourceConfig{Kind: "local", Local: h5}, nil, fastPolicy(1))
	require.NoError(t, err)
	assert.IsType(t, &source.LocalSource{}, src)

	_, err = source.NewRecordSource(context.Background(), config.SourceConfig{Kind: "ftp"}, nil, fastPolicy(1))
	assert.ErrorIs(t, err, exception.ErrConfiguration)
}
