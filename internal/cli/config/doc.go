// Package config defines the sigmesh-cli configuration file.
//
// The file lives at ~/.sigmesh/cli.yaml and supplies defaults for the
// global flags, plus named profiles for switching between servers and
// identities.
package config
