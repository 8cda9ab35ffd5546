package event

import "fmt"

// ManifestError reports an EVENT.md that is missing or structurally invalid.
// It is fatal for that one folder only; directory scans skip and continue.
type ManifestError struct {
	Folder string
	Reason string
	Err    error
}

func (e *ManifestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Folder, e.Reason, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Folder, e.Reason)
}

func (e *ManifestError) Unwrap() error { return e.Err }
