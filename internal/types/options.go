package types

// ManagerOptions holds the collaborators handed to the cache manager.
// Nil fields are filled from config by the facade.
type ManagerOptions struct {
	// Logger is the structured logger to use.
	Logger Logger

	// Metrics is the metrics recorder.
	Metrics MetricsRecorder

	// Source overrides the built-in HTTP/local fetcher.
	Source SourceProvider

	// Transformer overrides the built-in image transformer.
	Transformer Transformer

	// Store overrides the blob store selected by config.
	Store BlobStore

	// RedisAddress overrides the Redis address from config.
	RedisAddress string

	// RedisPassword overrides the Redis password from config.
	// Uses SecretString to prevent accidental logging of sensitive values.
	RedisPassword SecretString

	// DisableResilience fetches sources without circuit breaker and retry.
	DisableResilience bool
}
