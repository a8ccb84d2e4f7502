package messaging

import "errors"

// ErrClosed is returned by Receive once the channel is shut down and empty.
var ErrClosed = errors.New("message channel closed")
