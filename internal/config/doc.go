// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation,
// so credentials such as the database password never need to live in the file.
// See configs/ingest.example.yaml for the full schema.
package config
