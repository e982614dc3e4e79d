// Package main provides the entry point for sigmesh-server.
//
// sigmesh-server is the relay and coordination service for SigMesh
// communities: it stores signed log entries, tracks membership
// connections, and fans entries out to connected members.
package main
