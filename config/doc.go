// Package config provides application configuration management.
//
// The config package loads and validates gradebox settings from a YAML file,
// with GRADEBOX_-prefixed environment overrides. It covers the controller
// limits, the interpreter runtime, the analyzer policy and logging.
//
// Usage:
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Timeout: %s\n", cfg.Timeout())
package config
