package skip

import (
	"sync"

	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
)

// Unlimited is the skip limit that never exhausts.
const Unlimited = -1

// SkipPolicy decides whether a record that failed to fetch or decode may be skipped,
// and tracks how many have been.
type SkipPolicy interface {
	// ShouldSkip determines if a given error is skippable and the limit allows another skip.
	ShouldSkip(err error) bool
	// CanSkip determines if further skips are allowed within the current skip limit.
	CanSkip() bool
	// IncrementSkipCount increments the count of skipped records by 1.
	IncrementSkipCount()
	// GetSkipCount returns the total number of records skipped so far.
	GetSkipCount() int
	// GetSkipLimit returns the configured limit. -1 means unlimited.
	GetSkipLimit() int
}

// DefaultSkipPolicyFactory generates instances of defaultSkipPolicy based on configuration.
type DefaultSkipPolicyFactory struct{}

// NewDefaultSkipPolicyFactory creates a new DefaultSkipPolicyFactory.
func NewDefaultSkipPolicyFactory() *DefaultSkipPolicyFactory {
	return &DefaultSkipPolicyFactory{}
}

// Create creates a new SkipPolicy. skipLimit -1 is unlimited and 0 forbids skipping.
// skippableErrors are registered error type names skipped regardless of their flags.
func (f *DefaultSkipPolicyFactory) Create(skipLimit int, skippableErrors []string) SkipPolicy {
	return &defaultSkipPolicy{
		skipLimit:       skipLimit,
		skippableErrors: skippableErrors,
	}
}

type defaultSkipPolicy struct {
	mu              sync.Mutex
	skipLimit       int
	skippableErrors []string
	skipCount       int
}

// ShouldSkip checks the limit first, then the BatchError skippable flag,
// then the configured error type names.
func (p *defaultSkipPolicy) ShouldSkip(err error) bool {
	if err == nil || !p.CanSkip() {
		return false
	}
	if be, ok := exception.AsBatchError(err); ok && be.IsSkippable() {
		return true
	}
	for _, typeName := range p.skippableErrors {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return false
}

func (p *defaultSkipPolicy) CanSkip() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.skipLimit == Unlimited || p.skipCount < p.skipLimit
}

func (p *defaultSkipPolicy) IncrementSkipCount() {
	p.mu.Lock()
	p.skipCount++
	p.mu.Unlock()
}

func (p *defaultSkipPolicy) GetSkipCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.skipCount
}

func (p *defaultSkipPolicy) GetSkipLimit() int {
	return p.skipLimit
}

// Verify interfaces
var _ SkipPolicy = (*defaultSkipPolicy)(nil)
