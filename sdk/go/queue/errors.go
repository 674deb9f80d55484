package queue

// Error codes for queue transports. Keep stable; used across drivers and the relay.
const (
	ErrCodeSendFailed        = "queue.send_failed"
	ErrCodeNotConfigured     = "queue.not_configured"
	ErrCodeUnsupportedDriver = "queue.unsupported_driver"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrSendFailed        = Code(ErrCodeSendFailed)
	ErrNotConfigured     = Code(ErrCodeNotConfigured)
	ErrUnsupportedDriver = Code(ErrCodeUnsupportedDriver)
)
