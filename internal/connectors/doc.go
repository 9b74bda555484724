// Package connectors contains the per-source read adapters. Each
// subpackage implements one of the source ports in
// internal/core/ports/driven; the sync adapters consume them only
// through those interfaces. Connectors take pre-issued tokens; OAuth
// and connection-status flows live in the host application.
package connectors
