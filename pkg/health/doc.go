// Package health decides whether a deployment is healthy by polling its
// cluster tasks and, when configured, running the service's own probe.
// The whole decision is bounded by the health check's wall-clock budget;
// nothing in this package waits indefinitely.
package health
