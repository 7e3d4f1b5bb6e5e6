package homebase

import "fmt"

// remoteError carries a homebase-reported eval failure; its Error text is
// the remote message prefixed with "homebase: remote eval error: ".
type remoteError struct {
	message string
}

func (e *remoteError) Error() string {
	return fmt.Sprintf("homebase: remote eval error: %s", e.message)
}

func errEval(message string) error {
	return &remoteError{message: message}
}
