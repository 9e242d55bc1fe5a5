/*
Package store provides BoltDB-backed persistence for deployment records and
archival snapshots.

Deployments are keyed by their hash; a service's history is a filtered scan.
Archival snapshots are consume-once: PopServiceSnapshot and
PopProjectSnapshot read and delete in a single transaction, which is what
keeps concurrent reclaim workers from tearing down the same resources
twice. All records are serialized as JSON in per-kind buckets.
*/
package store
