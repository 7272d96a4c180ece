package skip_test

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/recordbatch/pkg/batch/engine/step/skip"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
)

func TestSkipPolicy_Unlimited(t *testing.T) {
	p := skip.NewDefaultSkipPolicyFactory().Create(skip.Unlimited, nil)
	fetchErr := exception.NewFetchFailure("a.h5", errors.New("reset"))

	for i := 0; i < 100; i++ {
		assert.True(t, p.ShouldSkip(fetchErr))
		p.IncrementSkipCount()
	}
	assert.Equal(t, 100, p.GetSkipCount())
	assert.True(t, p.CanSkip())
	assert.False(t, p.ShouldSkip(exception.NewSinkFailure("x", nil, true)))
}

func TestSkipPolicy_Bounded(t *testing.T) {
	p := skip.NewDefaultSkipPolicyFactory().Create(2, nil)
	decodeErr := exception.NewDecodeFailure("a.h5", "bad", nil)

	assert.True(t, p.ShouldSkip(decodeErr))
	p.IncrementSkipCount()
	assert.True(t, p.ShouldSkip(decodeErr))
	p.IncrementSkipCount()
	assert.False(t, p.CanSkip())
	assert.False(t, p.ShouldSkip(decodeErr))
	assert.Equal(t, 2, p.GetSkipLimit())
}

func TestSkipPolicy_ZeroForbidsSkipping(t *testing.T) {
	p := skip.NewDefaultSkipPolicyFactory().Create(0, nil)
	assert.False(t, p.CanSkip())
	assert.False(t, p.ShouldSkip(exception.NewFetchFailure("a.h5", nil)))
}

func TestSkipPolicy_ConfiguredErrorTypes(t *testing.T) {
	p := skip.NewDefaultSkipPolicyFactory().Create(skip.Unlimited, []string{"io.ErrUnexpectedEOF"})
	assert.True(t, p.ShouldSkip(fmt.Errorf("read dataset: %w", io.ErrUnexpectedEOF)))
	assert.False(t, p.ShouldSkip(errors.New("plain")))
}
