package xgrpc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMethod is returned for malformed full method names.
var ErrInvalidMethod = errors.New("method name must be in format `/package.service/method`")

// ParseFullMethod parses a full method name into its service and method
// components.
//
// For example, the full method name `/tablepb.TableService/AddEntry` will
// be parsed into `tablepb.TableService` and `AddEntry`.
func ParseFullMethod(fullMethod string) (string, string, error) {
	name, ok := strings.CutPrefix(fullMethod, "/")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidMethod, fullMethod)
	}

	pos := strings.LastIndex(name, "/")
	if pos <= 0 || pos == len(name)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidMethod, fullMethod)
	}

	return name[:pos], name[pos+1:], nil
}
