/*
Package types defines the core data model shared by all Dockhand components.

The model separates three lifecycles:

  - ServiceDefinition and its sub-entities (ports, volumes, env variables,
    routes, health check) are owned by the platform's metadata store and
    are read-only snapshots here.
  - Deployment is one immutable attempt at running a service. It pins the
    image tag, carries a unique hash, and moves through a status state
    machine until it reaches a terminal state.
  - Archived snapshots (ArchivedProject, ArchivedService, ...) are created
    once at archival time and consumed exactly once by resource
    reclamation. They are independent of the live records.

The package also owns resource naming: every cluster resource Dockhand
creates gets its name from a pure function of stable ids (NetworkName,
WorkloadName, VolumeResourceName) and a label set from ResourceLabels.
Naming lives here, next to the model, so that provisioning and reclamation
can never disagree about what a resource is called.
*/
package types
