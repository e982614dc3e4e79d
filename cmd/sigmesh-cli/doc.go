// Package main provides the entry point for sigmesh-cli.
//
// sigmesh-cli is the command-line tool for operating a sigmesh-server:
// creating communities, managing connections, submitting and pulling
// log entries, and watching the relay event stream.
package main
