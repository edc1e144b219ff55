// Package output provides JSON/styled output formatting and the structured error taxonomy.
package output

// Exit codes.
const (
	ExitOK         = 0 // Success
	ExitValidation = 1 // Invalid input, rejected before any request
	ExitAuth       = 3 // Not logged in
	ExitSession    = 4 // Refresh token rejected; session cleared
	ExitNetwork    = 6 // Connection/DNS/timeout error
	ExitAPI        = 7 // Server returned an error
	ExitUnexpected = 8 // Malformed or unparseable response
)

// Error codes for the JSON envelope.
const (
	CodeValidation     = "validation"
	CodeAuth           = "auth_required"
	CodeSessionExpired = "session_expired"
	CodeNetwork        = "network"
	CodeAPI            = "api_error"
	CodeUnexpected     = "unexpected"
)

// ExitCodeFor returns the exit code for a given error code.
func ExitCodeFor(code string) int {
	switch code {
	case CodeValidation:
		return ExitValidation
	case CodeAuth:
		return ExitAuth
	case CodeSessionExpired:
		return ExitSession
	case CodeNetwork:
		return ExitNetwork
	case CodeAPI:
		return ExitAPI
	case CodeUnexpected:
		return ExitUnexpected
	default:
		return ExitAPI
	}
}
