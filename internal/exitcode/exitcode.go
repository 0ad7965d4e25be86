// Package exitcode defines named exit codes for the duet-loop CLI.
//
// Each code maps a specific termination condition to a numeric value
// recognized by shell scripts and CI pipelines.
package exitcode

// Exit code constants.
const (
	Success          = 0   // Task generated and review approved
	Error            = 1   // Invalid args, file not found, misconfiguration
	Rejected         = 2   // Review rejected the output after repair attempts
	CorruptedState   = 3   // No valid state document or backup found
	LockTimeout      = 4   // Could not synchronize on the session state
	AgentUnavailable = 5   // Requested back-end CLI is not installed
	Interrupted      = 130 // SIGINT/SIGTERM received
)

// Name returns the human-readable name for the given exit code.
// Unknown codes return "unknown".
func Name(code int) string {
	switch code {
	case Success:
		return "Success"
	case Error:
		return "Error"
	case Rejected:
		return "Rejected"
	case CorruptedState:
		return "CorruptedState"
	case LockTimeout:
		return "LockTimeout"
	case AgentUnavailable:
		return "AgentUnavailable"
	case Interrupted:
		return "Interrupted"
	default:
		return "unknown"
	}
}
