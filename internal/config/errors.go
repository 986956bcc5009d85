package config

import "fmt"

// ConfigError reports configuration that cannot start a match. It is
// always fatal: the process logs it once and shuts down.
type ConfigError struct {
	Source string // file path or "environment"
	Field  string
	Err    error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Source != "" && e.Field != "":
		return fmt.Sprintf("config %s: %s: %v", e.Source, e.Field, e.Err)
	case e.Source != "":
		return fmt.Sprintf("config %s: %v", e.Source, e.Err)
	case e.Field != "":
		return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
	default:
		return fmt.Sprintf("config: %v", e.Err)
	}
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
