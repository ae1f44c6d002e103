package observability

// Exported for tests.
var (
	SamplerOf         = Config.sampler
	ShutdownTimeoutOf = Config.shutdownTimeout
)
