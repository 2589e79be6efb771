// Package disktier provides the SQLite-backed persisted cache tier.
//
// A Store keeps encoded cache entries in a single cache_entries table so
// they survive process restarts. Entries carry their write timestamp and a
// TTL; expired or undecodable rows are treated as misses and deleted on
// read. The table is bounded by entry count, evicting the oldest rows by
// write time when a Put would exceed the limit.
//
// Opening a store applies embedded schema migrations. A database file that
// cannot be opened because it is corrupted is wiped and recreated once, so
// a damaged cache degrades to a cold one instead of an unusable one.
package disktier
