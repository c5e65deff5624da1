package cli

// Exit codes returned by Run.
const (
	// ExitOK indicates successful completion.
	ExitOK = 0

	// ExitUsage indicates bad arguments or configuration.
	ExitUsage = 1

	// ExitAuth indicates a missing or rejected session.
	ExitAuth = 2

	// ExitBackend indicates the backend failed or could not be reached.
	ExitBackend = 3
)
