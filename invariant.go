//go:build !hwdecdebug

package hwdec

import "fmt"

// invariantf reports a contract violation as an ErrInvariant error.
// Builds with the hwdecdebug tag panic instead.
func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}
