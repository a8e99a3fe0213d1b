/*
Package session owns the lifecycle of the per-user pipeline Session.

The Manager is the only path through which a Session is mutated: it initializes
fresh sessions from the catalog, serializes read-modify-write cycles per session
ID (in-process via reference-counted mutexes, across replicas via an optional
ports.DistributedLocker), and commits all-or-nothing with a forward-only stage
guard and an optimistic revision check.
*/
package session
