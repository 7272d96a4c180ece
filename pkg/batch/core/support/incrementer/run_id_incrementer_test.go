package incrementer_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/recordbatch/pkg/batch/core/support/incrementer"
)

func TestRunIDIncrementer_Configured(t *testing.T) {
	inc := incrementer.NewRunIDIncrementer("  nightly-42 ")
	assert.Equal(t, "nightly-42", inc.GetNext())
	assert.Equal(t, "nightly-42", inc.GetNext())
}

func TestRunIDIncrementer_Generated(t *testing.T) {
	inc := incrementer.NewRunIDIncrementer("")
	first, second := inc.GetNext(), inc.GetNext()
	_, err := uuid.Parse(first)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
