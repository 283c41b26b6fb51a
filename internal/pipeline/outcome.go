package pipeline

// Kind classifies how a stage or service call ended.
type Kind int

const (
	// Success means the capability produced the value.
	Success Kind = iota
	// Degraded means the capability failed and a fallback value was used.
	Degraded
	// Fatal means the capability failed and no value is available.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Degraded:
		return "degraded"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// Outcome is the result of a stage: a value, how it was obtained, and the
// underlying error for Degraded and Fatal outcomes.
type Outcome[T any] struct {
	Value T
	Kind  Kind
	Err   error
}

// Ok wraps a value produced by its capability.
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v, Kind: Success}
}

// Degrade wraps a fallback value used because of err.
func Degrade[T any](v T, err error) Outcome[T] {
	return Outcome[T]{Value: v, Kind: Degraded, Err: err}
}

// Fail wraps an error that aborts the caller.
func Fail[T any](err error) Outcome[T] {
	return Outcome[T]{Kind: Fatal, Err: err}
}

// IsFatal reports whether the outcome carries no usable value.
func (o Outcome[T]) IsFatal() bool {
	return o.Kind == Fatal
}
