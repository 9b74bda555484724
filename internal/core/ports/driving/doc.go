// Package driving provides interfaces for primary/inbound ports: the
// surfaces through which the host application drives the engine.
package driving
