package sql

import "time"

// CursorEntity is the row stored for one partition's progress cursor.
type CursorEntity struct {
	PartitionKey       string     `gorm:"column:partition_key;primaryKey"`
	RunID              string     `gorm:"column:run_id"`
	RecordsConsumed    int64      `gorm:"column:records_consumed"`
	LastRef            string     `gorm:"column:last_ref"`
	NextSequence       int64      `gorm:"column:next_sequence"`
	ArtifactsPublished int64      `gorm:"column:artifacts_published"`
	UpdatedAt          *time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
}

// TableName specifies the table name for CursorEntity.
func (CursorEntity) TableName() string { return "recordbatch_cursor" }

// ArtifactEntity is one ledger row.
type ArtifactEntity struct {
	ID           string     `gorm:"column:id;primaryKey"`
	RunID        string     `gorm:"column:run_id"`
	PartitionKey string     `gorm:"column:partition_key"`
	Name         string     `gorm:"column:name"`
	StorageRef   string     `gorm:"column:storage_ref"`
	Bucket       string     `gorm:"column:bucket"`
	ObjectKey    string     `gorm:"column:object_key"`
	Format       string     `gorm:"column:format"`
	RowCount     int        `gorm:"column:row_count"`
	SequenceNo   int64      `gorm:"column:sequence_no"`
	Status       string     `gorm:"column:status"`
	LocalPath    string     `gorm:"column:local_path"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
	CreatedAt    *time.Time `gorm:"column:created_at;autoCreateTime:false"`
}

// TableName specifies the table name for ArtifactEntity.
func (ArtifactEntity) TableName() string { return "recordbatch_artifact" }
