package mcpadapter

// Mode selects which transport Server exposes.
type Mode string

const (
	ModeStdio Mode = "stdio"
	ModeSSE   Mode = "sse"
	ModeHTTP  Mode = "http"
)

// Config holds the adapter's own transport configuration; command policy
// and process state live in the injected executor.Executor.
type Config struct {
	Mode Mode
	Host string
	Port int
}
