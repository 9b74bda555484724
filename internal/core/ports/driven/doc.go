// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports): storage, embedding, reranking and the
// per-source connectors.
package driven
