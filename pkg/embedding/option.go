package embedding

type config struct {
	tokenCeiling int
	requestBatch int
}

// Option configures an encoder
type Option func(*config)

// WithTokenCeiling sets the maximum number of input tokens accepted per text
func WithTokenCeiling(n int) Option {
	return func(c *config) {
		c.tokenCeiling = n
	}
}

// WithRequestBatch sets how many texts the Gemini encoder sends in one
// embedding request (default 1). Only raise it for models that accept
// multiple inputs per request.
func WithRequestBatch(n int) Option {
	return func(c *config) {
		c.requestBatch = n
	}
}

func newConfig(opts []Option) *config {
	cfg := &config{tokenCeiling: DefaultTokenCeiling, requestBatch: 1}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
