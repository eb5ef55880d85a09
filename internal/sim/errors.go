package sim

import "errors"

// Sentinel errors for the engine's error taxonomy. Callers discriminate with
// errors.Is; call sites wrap these with context via fmt.Errorf("...: %w", ...).
var (
	ErrConfigurationInvalid = errors.New("configuration invalid")
	ErrUnknownComponent     = errors.New("unknown component")
	ErrUnsupportedFault     = errors.New("unsupported fault for component")
	ErrBatchFull            = errors.New("event batch full")
	ErrMaxSimulations       = errors.New("max simulations reached")
	ErrNotFound             = errors.New("simulation not found")
	ErrNotRunning           = errors.New("simulation not running")
	ErrAlreadyRunning       = errors.New("simulation already running")
	ErrTimedOut             = errors.New("simulation exceeded wall-clock budget")
	ErrResourceExhausted    = errors.New("resource exhausted during tick")
)
