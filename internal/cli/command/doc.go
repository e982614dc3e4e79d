// Package command provides CLI command definitions for sigmesh-cli.
//
// It uses urfave/cli/v2 for command parsing. Commands talk to a
// sigmesh-server through the client package and render results through
// the output package.
package command
