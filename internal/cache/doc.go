// Package cache defines the disk-backed partition store that maps canonical
// request identities to captured response snapshots. Partitions are named,
// versioned collections (static-assets@vN / api-data@vN) living under
// StoragePath/<partition>/. Writes use temp file + rename so an entry file is
// either the old snapshot or the new one, never a torn mix; whole partitions
// are removed wholesale at version cutover. The interceptor and the lifecycle
// manager depend on this package instead of touching the filesystem directly.
package cache
