package writer

import (
	"fmt"
	"path"
	"strings"
)

// ArtifactNamer builds collision-free artifact keys:
// <prefix>/<partition>/part-<seq:06d>-<run id, 8 chars>.<ext>.
// Sequences are persisted in the progress cursor, so names never repeat across resumed runs.
type ArtifactNamer struct {
	Prefix    string
	Partition string
	RunID     string
	Extension string
}

// Name returns the file name for seq.
func (n ArtifactNamer) Name(seq int64) string {
	return fmt.Sprintf("part-%06d-%s.%s", seq, shortRunID(n.RunID), n.Extension)
}

// Key returns the object key for seq.
func (n ArtifactNamer) Key(seq int64) string {
	return path.Join(strings.Trim(n.Prefix, "/"), strings.Trim(n.Partition, "/"), n.Name(seq))
}

func shortRunID(runID string) string {
	id := strings.ReplaceAll(runID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	if id == "" {
		id = "norunid0"
	}
	return id
}
