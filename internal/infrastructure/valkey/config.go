package valkey

// Config holds connector settings that are not part of a connection request.
// Env tags carry no defaults so they only override values that are set.
type Config struct {
	Tracing          bool `mapstructure:"tracing"            env:"GLIDE_TRACING"`
	ClientSideCache  bool `mapstructure:"client_side_cache"  env:"GLIDE_CLIENT_SIDE_CACHE"`
	BlockingPoolSize int  `mapstructure:"blocking_pool_size" env:"GLIDE_BLOCKING_POOL_SIZE"`
}
