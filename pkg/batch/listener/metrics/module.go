package metrics

import (
	"go.uber.org/fx"
)

// Module contributes the metrics listener to the pipeline listener group and
// optionally decorates the recorder with the asynchronous wrapper.
var Module = fx.Options(
	fx.Decorate(NewAsyncMetricRecorderWrapper),
	fx.Provide(fx.Annotate(
		NewMetricsListener,
		fx.ResultTags(`group:"pipeline_listeners"`),
	)),
)
