package log

const (
	DefaultPattern = "%time [%level] %field %msg\n"
	DefaultTime    = "2006-01-02 15:04:05.000"
	DefaultLevel   = "info"
)

// LoggerConfig is the `log:` section of the configuration file.
type LoggerConfig struct {
	Level   string          `mapstructure:"level" yaml:"level"`
	Pattern string          `mapstructure:"pattern" yaml:"pattern"`
	Time    string          `mapstructure:"time" yaml:"time"`
	Caller  bool            `mapstructure:"caller" yaml:"caller"`
	File    FileAppenderOpt `mapstructure:"file" yaml:"file"`
}

func (c *LoggerConfig) applyDefaults() {
	if c.Pattern == "" {
		c.Pattern = DefaultPattern
	}
	if c.Time == "" {
		c.Time = DefaultTime
	}
	if c.Level == "" {
		c.Level = DefaultLevel
	}
}
