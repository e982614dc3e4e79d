// Package cmap provides a generic concurrent map sharded across
// independently locked buckets.
//
// The server keeps its hot lookup tables in it: the community registry,
// the transport session table, and the per-connection submit limiters.
// Each shard holds its own RWMutex, so lookups on different communities
// do not contend.
//
// Usage:
//
//	m := cmap.New[string, *Community]()
//	m.Set("acme", c)
//	val, ok := m.Get("acme")
//
// All operations are safe for concurrent use. Range locks shards one at
// a time and therefore observes a consistent view per shard, not across
// the whole map.
package cmap
