// Package reclaim tears down the cluster resources of archived services
// and projects, driven purely by archival snapshots.
package reclaim
