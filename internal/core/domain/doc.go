// Package domain defines the core business entities for quarry.
//
// This package is the innermost layer of the hexagonal architecture.
// It has no external dependencies and defines the fundamental types:
// documents, sync cursors, search results and the shared error taxonomy.
package domain
