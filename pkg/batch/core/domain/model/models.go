// Package model defines the entities that flow through the extraction pipeline:
// record locators, staged records, rows, batches, artifacts and the progress cursor.
package model

import (
	"fmt"
	"time"
)

// RecordKind tells the fetcher where a record's bytes live.
type RecordKind string

const (
	// RecordKindLocal is a file on the local file system; ID is its path.
	RecordKindLocal RecordKind = "local"
	// RecordKindRemote is an object in a remote store; ID is its key within Bucket.
	RecordKindRemote RecordKind = "remote"
)

// RecordRef locates one source record.
type RecordRef struct {
	Kind RecordKind
	// ID is the local path or the object key.
	ID string
	// Bucket is the object-store bucket for remote records.
	Bucket string
	// Position is the 0-based index of the record in its enumeration.
	Position int64
}

// String returns a printable locator such as "s3://bucket/key" or a local path.
func (r RecordRef) String() string {
	if r.Kind == RecordKindRemote {
		return fmt.Sprintf("%s/%s", r.Bucket, r.ID)
	}
	return r.ID
}

// StagedRecord is a transient local copy of a record's bytes.
// It is owned by one fetch-decode span and released when that span ends.
type StagedRecord struct {
	Ref  RecordRef
	Path string

	release  func() error
	released bool
}

// NewStagedRecord creates a StagedRecord. release may be nil for records that need no cleanup.
func NewStagedRecord(ref RecordRef, path string, release func() error) *StagedRecord {
	return &StagedRecord{Ref: ref, Path: path, release: release}
}

// Release frees the staging storage. It is safe to call more than once.
func (s *StagedRecord) Release() error {
	if s == nil || s.released {
		return nil
	}
	s.released = true
	if s.release == nil {
		return nil
	}
	return s.release()
}

// Released reports whether Release has been called.
func (s *StagedRecord) Released() bool {
	return s == nil || s.released
}

// ArtifactStatus is the outcome of publishing one batch.
type ArtifactStatus string

const (
	ArtifactPublished ArtifactStatus = "published"
	ArtifactFailed    ArtifactStatus = "failed"
)

// Artifact is one durably written output unit.
type Artifact struct {
	Name       string
	StorageRef string
	Bucket     string
	Key        string
	Format     string
	RowCount   int
	Sequence   int64
	Status     ArtifactStatus
	// LocalPath is the spool file kept for manual recovery when Status is failed.
	LocalPath   string
	PublishedAt time.Time
}

// Location returns "<storageRef>://<bucket>/<key>".
func (a Artifact) Location() string {
	if a.Bucket == "" {
		return fmt.Sprintf("%s://%s", a.StorageRef, a.Key)
	}
	return fmt.Sprintf("%s://%s/%s", a.StorageRef, a.Bucket, a.Key)
}
