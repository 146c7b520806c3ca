//go:build hwdecdebug

package hwdec

import "fmt"

// invariantf panics on a contract violation.
func invariantf(format string, args ...any) error {
	panic(fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...)))
}
