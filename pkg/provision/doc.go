/*
Package provision creates and updates cluster workloads for deployments.

A service maps to exactly one workload whose name is derived from the
project and service ids; provisioning is create-or-update against that
stable name. The package also owns the per-project overlay network (and
its attachment to the shared proxy workload) and the service's named
volumes, which are created before the workload that mounts them.
*/
package provision
