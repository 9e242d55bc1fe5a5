/*
Package proxy keeps the reverse proxy's routing tree consistent with the
set of live deployments.

The proxy (Caddy) is configured entirely through its admin API: JSON route
nodes addressable by stable @id values. Dockhand maintains three kinds of
nodes:

  - Domain nodes: one per exposed domain, a subroute container whose @id
    is the domain itself. A domain node exists iff at least one route
    references it; removing the last route removes the node and its log
    channel.
  - URL route nodes: one per (domain, base path), @id derived by RouteID.
    They proxy a path prefix to a workload, optionally stripping the
    prefix first.
  - Preview nodes: one whole domain per preview deployment URL. Their
    handler chain replays each request against the platform's auth
    endpoint before proxying, so preview access is re-validated on every
    request.

Because the proxy evaluates a domain's routes in list order, EnsureURLRoute
always rewrites the complete list: read, append, sort by path specificity
(SortRoutes), replace in one PATCH. Other orchestration workers may be
doing the same concurrently; the admin API holds the only authoritative
copy, so the list is re-read on every call and a verification read after
the PATCH retries the whole read-modify-write when the update was lost.
*/
package proxy
