// Package config provides loading and environment overlay for flolog
// configuration. It exposes a Default() baseline, a file loader for JSON and
// YAML, and FromEnv for FLOLOG_* overrides.
//
// Example:
//
//	cfg, err := config.Load("/etc/flolog.yaml")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
package config
