// Package services contains the core business logic: the per-source
// sync adapters, the orchestrator that coordinates them, and the
// hybrid search engine. Everything here talks to the outside world
// through the driven ports only.
package services
