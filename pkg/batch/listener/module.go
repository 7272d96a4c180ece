package listener

import (
	"go.uber.org/fx"

	"github.com/tigerroll/recordbatch/pkg/batch/listener/logging"
	"github.com/tigerroll/recordbatch/pkg/batch/listener/metrics"
	"github.com/tigerroll/recordbatch/pkg/batch/listener/tracing"
)

// Module aggregates all pipeline listener modules.
var Module = fx.Options(
	logging.Module,
	metrics.Module,
	tracing.Module,
)
