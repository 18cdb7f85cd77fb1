package config

import "fmt"

// ErrRead wraps a failure to read the configuration file
func ErrRead(path string, err error) error {
	return fmt.Errorf("config: read %s: %w", path, err)
}

// ErrParse wraps a YAML decoding failure
func ErrParse(err error) error {
	return fmt.Errorf("config: parse: %w", err)
}

// ErrSection wraps an invalid section
func ErrSection(section string, err error) error {
	return fmt.Errorf("config: %s: %w", section, err)
}

// ErrMissing reports a required setting that is absent
func ErrMissing(what string) error {
	return fmt.Errorf("%s required", what)
}

// ErrUnknownDriver reports an unsupported store driver
func ErrUnknownDriver(driver string) error {
	return fmt.Errorf("unknown driver %q", driver)
}
