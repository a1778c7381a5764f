// Provides common feedview error definitions.
package feedview_errors

import "errors"

var (
	ErrDuplicateIndex      = errors.New("feedview: duplicate index key")
	ErrEmptyFieldPaths     = errors.New("feedview: index has no field paths")
	ErrExactUnderqualified = errors.New("feedview: exact index is not fully qualified by the query")
	ErrSkippedComponent    = errors.New("feedview: range scan can't skip an index component")
	ErrBadQuery            = errors.New("feedview: malformed query")
	ErrBatchTooLarge       = errors.New("feedview: batch exceeds max batch size")

	ErrRejected       = errors.New("feedview: record failed validation")
	ErrRecordNotFound = errors.New("feedview: record not found")
	ErrNotFound       = errors.New("feedview: key not found")
	ErrCorruptState   = errors.New("feedview: checkpoint checksum mismatch")
	ErrClosed         = errors.New("feedview: view is closed")
)

var configurationErrors = []error{
	ErrDuplicateIndex,
	ErrEmptyFieldPaths,
	ErrExactUnderqualified,
	ErrSkippedComponent,
	ErrBadQuery,
	ErrBatchTooLarge,
}

// IsConfiguration reports whether err is fatal at setup or call time.
// Such errors are never worth retrying.
func IsConfiguration(err error) bool {
	for _, cerr := range configurationErrors {
		if errors.Is(err, cerr) {
			return true
		}
	}
	return false
}
