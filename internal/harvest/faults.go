package harvest

import (
	"errors"
	"fmt"
)

// Error codes recorded into RunState.last_error.
const (
	CodeLoopOperationFailed = "E_LOOP_OPERATION_FAILED"
	CodeRetryExceeded       = "E_RETRY_EXCEEDED"
	CodeContainerNotFound   = "E_CONTAINER_NOT_FOUND"
	CodeWriteFailed         = "E_WRITE_FAILED"
	CodeUnexpected          = "E_UNEXPECTED"
)

// FaultKind classifies a failure for retry and exit-code decisions. Faults
// are plain tagged errors; control flow never depends on panics.
type FaultKind int

const (
	// KindUnexpected covers anything not otherwise classified.
	KindUnexpected FaultKind = iota
	// KindConfig is a bad or missing parameter. Never retried; the run does
	// not start.
	KindConfig
	// KindContainerNotFound means the scroll container is structurally
	// absent before the loop begins. Terminal, no retry.
	KindContainerNotFound
	// KindRecoverable is a transient driver failure mid-loop (timeout,
	// detached node). Retried with backoff up to the configured bound.
	KindRecoverable
	// KindWrite is a durable-storage failure (raw log, checkpoint, final
	// artifact). Not retried: retrying opaque disk errors risks data-loss
	// ambiguity.
	KindWrite
)

func (k FaultKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindContainerNotFound:
		return "container_not_found"
	case KindRecoverable:
		return "recoverable"
	case KindWrite:
		return "write"
	default:
		return "unexpected"
	}
}

// Fault tags an underlying error with its kind.
type Fault struct {
	Kind FaultKind
	Err  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s fault: %v", f.Kind, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

func ConfigFault(format string, args ...any) error {
	return &Fault{Kind: KindConfig, Err: fmt.Errorf(format, args...)}
}

func ContainerNotFound(selector string) error {
	return &Fault{Kind: KindContainerNotFound, Err: fmt.Errorf("container not found: %s", selector)}
}

func Recoverable(err error) error {
	if err == nil {
		return nil
	}
	return &Fault{Kind: KindRecoverable, Err: err}
}

func WriteFault(err error) error {
	if err == nil {
		return nil
	}
	return &Fault{Kind: KindWrite, Err: err}
}

// KindOf returns the fault kind of err, or KindUnexpected when err carries
// no tag.
func KindOf(err error) FaultKind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnexpected
}

// CodeOf maps a fault kind to its RunState error code.
func CodeOf(err error) string {
	switch KindOf(err) {
	case KindContainerNotFound:
		return CodeContainerNotFound
	case KindRecoverable:
		return CodeLoopOperationFailed
	case KindWrite:
		return CodeWriteFailed
	default:
		return CodeUnexpected
	}
}

// ErrRetryExceeded is returned by the loop when the consecutive-failure
// budget is spent. Distinct from a pre-loop container miss.
var ErrRetryExceeded = errors.New("max retries exceeded during collection loop")
