package interfaces

import "deribit-gateway/src/models"

// -----------------------------------------------------------------------------
// IDatabase defines the contract for storage operations.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveInvocation records one tool call.
	SaveInvocation(inv models.MInvocation) error

	// -----------------------------------------------------------------------------

	// SaveSnapshot archives a serialized analytics payload.
	SaveSnapshot(snap models.MSnapshot) error

	// -----------------------------------------------------------------------------

	// RecentInvocations returns up to limit records, newest first.
	RecentInvocations(limit int) ([]models.MInvocation, error)

	// -----------------------------------------------------------------------------

	// CleanupOldData removes data older than the retention policy.
	CleanupOldData() error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
