// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// File upload constants
const (
	// MaxUploadSize is the maximum submission size in bytes (50MB)
	MaxUploadSize = 50 << 20
)

// Handler pagination constants
const (
	// DefaultHandlerPageSize is the page size for paginated handler endpoints
	DefaultHandlerPageSize = 50

	// MaxHandlerPageSize caps a client-requested page size
	MaxHandlerPageSize = 500
)

// Face matching constants
const (
	// EmbeddingDim is the face embedding dimension produced by the face service
	EmbeddingDim = 512
)
