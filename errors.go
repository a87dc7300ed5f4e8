package polyphony

import "fmt"

// UsageError reports a caller-level misuse of the API, such as calling
// [Supervise] with no children and no block. [Spin] and [Fiber.Await]
// panic with it; [Supervise] returns it as its error. It is never
// delivered as a [Signal].
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	if e.Message == "" {
		return "polyphony: usage error"
	}
	return e.Message
}

// PanicError wraps a panic value recovered from a fiber body. It becomes
// the fiber's failure [Outcome] in place of an ordinary error.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("polyphony: fiber panicked: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is itself an
// error, enabling [errors.Is]/[errors.As] through the cause chain.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// WrapError wraps cause with a message, preserving it for [errors.Is] and
// [errors.As].
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
