// Package config loads and validates orderedpipe configuration.
//
// Values come from a YAML file, an optional .env file and environment
// variables, in increasing order of precedence. Environment variables carry
// the ORDEREDPIPE_ prefix and use underscores for nesting
// (ORDEREDPIPE_PIPELINE_FACTOR sets pipeline.factor).
//
// # Usage
//
//	cfg, err := config.Load(config.WithConfigFile("orderedpipe.yml"))
//	if err != nil {
//	    return err
//	}
//	log := logger.New(&cfg.Logging, cfg.Name)
package config
