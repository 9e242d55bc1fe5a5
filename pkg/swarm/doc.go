/*
Package swarm wraps the Docker Swarm API behind the Client interface the
rest of Dockhand is written against.

The wrapper exists for three reasons:

  - One explicitly constructed client. The DockerClient is created once at
    startup and injected into every component; nothing in the codebase
    reaches for a lazily-initialized global connection.
  - Stable label queries. Label-based filtering is the only way teardown
    can find resources once the metadata records are gone, so the label
    query methods (ListVolumesByLabel, FindWorkloadByLabel, ListTasks with
    a selector) are defined here once instead of re-encoding filter
    strings at call sites.
  - Normalized errors. Absence is reported as ErrNotFound regardless of
    how the daemon phrased it, so callers can branch with IsNotFound
    without importing Docker's error helpers.

Blocking calls take a context and respect its deadline; AwaitWorkloadUpdate
in particular is a bounded event-stream read, never an indefinite wait.
*/
package swarm
