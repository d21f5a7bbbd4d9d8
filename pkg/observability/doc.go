/*
Package observability provides tools for monitoring the tessera registry.

It includes Prometheus collectors fed by domain.LifecycleHooks, structured
logging hooks for auditing registry writes, and Chain for combining several
hook sets into one.
*/
package observability
