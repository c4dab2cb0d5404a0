package logging

import (
	"slices"
	"time"
)

// Config selects sinks and router behavior. It is embedded in the application
// configuration file under "logging".
type Config struct {
	EnabledSinks     []string       `yaml:"sinks" json:"sinks"`
	BufferSize       int            `yaml:"bufferSize" json:"bufferSize"`
	MinimumSeverity  Severity       `yaml:"-" json:"-"`
	Level            string         `yaml:"level" json:"level"`
	Fields           map[string]any `yaml:"fields,omitempty" json:"fields,omitempty"`
	JSON             JSONConfig     `yaml:"json" json:"json"`
	DropWarnInterval time.Duration  `yaml:"dropWarnInterval" json:"dropWarnInterval"`
}

type JSONConfig struct {
	FilePath      string        `yaml:"path" json:"path"`
	FlushInterval time.Duration `yaml:"flushInterval" json:"flushInterval"`
}

func DefaultConfig() Config {
	return Config{
		EnabledSinks:     []string{"console"},
		BufferSize:       512,
		MinimumSeverity:  SeverityInfo,
		Level:            "info",
		DropWarnInterval: 5 * time.Second,
		JSON: JSONConfig{
			FlushInterval: 2 * time.Second,
		},
	}
}

func (c Config) HasSink(name string) bool {
	return slices.Contains(c.EnabledSinks, name)
}

func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	cloned := make(map[string]any, len(c.Fields))
	for k, v := range c.Fields {
		cloned[k] = v
	}
	return cloned
}
