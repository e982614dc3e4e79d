// Package config defines the server configuration structure.
//
// Values load from a YAML file and SIGMESH_-prefixed environment
// variables via internal/infra/confloader; Default() supplies the
// baseline and Verify() rejects inconsistent settings before startup.
package config
