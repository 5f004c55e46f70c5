package engine

// Config holds run engine settings.
type Config struct {
	// MaxIterations bounds reasoning rounds per run. Default is 12.
	MaxIterations int `json:"max_iterations"`

	// Temperature is passed to the reasoning model. Default is 0.4.
	Temperature float64 `json:"temperature"`

	// MaxTokens caps model output per round. Zero leaves it to the provider.
	MaxTokens int `json:"max_tokens"`

	// Model is used when the specialist does not name one.
	Model string `json:"model,omitempty"`
}

// DefaultConfig returns a Config with defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 12,
		Temperature:   0.4,
	}
}

// WithMaxIterations returns a copy of the config with n max iterations.
func (c Config) WithMaxIterations(n int) Config {
	c.MaxIterations = n
	return c
}

// WithTemperature returns a copy of the config with temperature t.
func (c Config) WithTemperature(t float64) Config {
	c.Temperature = t
	return c
}

// WithModel returns a copy of the config with the fallback model set.
func (c Config) WithModel(model string) Config {
	c.Model = model
	return c
}

func (c Config) normalized() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 12
	}
	if c.Temperature < 0 {
		c.Temperature = 0
	}
	if c.Temperature > 2 {
		c.Temperature = 2
	}
	return c
}
