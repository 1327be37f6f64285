// Package types contains the shared domain types for the book index:
// parsed books, text units, search results, and the error taxonomy used
// across the indexing and query pipelines.
package types
