// Package invariant reports caller contract violations. Builds tagged with
// `debug` panic so the offending call site fails fast; other builds log the
// violation and let the caller treat the request as a no-op.
package invariant

import (
	"fmt"

	"github.com/qiboda/atom-sub003/internal/telemetry"
)

// Violation reports a broken caller contract. It returns normally unless the
// binary was built with the debug tag.
func Violation(logger telemetry.Logger, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if failFast {
		panic("invariant violated: " + msg)
	}
	if logger == nil {
		logger = telemetry.Default()
	}
	logger.Printf("[invariant] %s", msg)
}

// FailFast reports whether violations panic in this build.
func FailFast() bool { return failFast }
