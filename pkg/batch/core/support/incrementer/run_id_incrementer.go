// Package incrementer supplies the identifiers that keep runs apart.
package incrementer

import (
	"strings"

	"github.com/google/uuid"

	logger "github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

// RunIDIncrementer hands out run ids. A configured id is reused as is, so a resumed run can
// keep the id of the run it continues; otherwise every call returns a new random UUID.
type RunIDIncrementer struct {
	configured string
	newID      func() string
}

// NewRunIDIncrementer creates a RunIDIncrementer for pipeline.run_id.
func NewRunIDIncrementer(configured string) *RunIDIncrementer {
	return &RunIDIncrementer{
		configured: strings.TrimSpace(configured),
		newID:      uuid.NewString,
	}
}

// GetNext returns the id of the next run.
func (i *RunIDIncrementer) GetNext() string {
	if i.configured != "" {
		logger.Debugf("RunIDIncrementer: using configured run id '%s'.", i.configured)
		return i.configured
	}
	id := i.newID()
	logger.Debugf("RunIDIncrementer: generated run id '%s'.", id)
	return id
}

// String returns the string representation of RunIDIncrementer.
func (i *RunIDIncrementer) String() string {
	if i.configured != "" {
		return "RunIDIncrementer[configured=" + i.configured + "]"
	}
	return "RunIDIncrementer[uuid]"
}
