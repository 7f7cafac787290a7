package util

import (
	"fmt"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
)

// DefaultRegexTimeout bounds backtracking for rule regex conditions.
// regexp2 enforces the limit inside the matcher, so a pathological pattern
// cannot stall an evaluation goroutine.
const DefaultRegexTimeout = 100 * time.Millisecond

// maxPatternLength rejects absurd patterns before they reach the compiler
const maxPatternLength = 1024

// SafeRegex wraps a compiled regexp2 pattern with a match timeout.
type SafeRegex struct {
	pattern string
	re      *regexp2.Regexp
}

// CompileSafe compiles a pattern with the default match timeout. Returns an
// error for empty, oversized or syntactically invalid patterns.
func CompileSafe(pattern string) (*SafeRegex, error) {
	return CompileSafeWithTimeout(pattern, DefaultRegexTimeout)
}

// CompileSafeWithTimeout compiles a pattern with an explicit match timeout.
func CompileSafeWithTimeout(pattern string, timeout time.Duration) (*SafeRegex, error) {
	if pattern == "" {
		return nil, fmt.Errorf("regex pattern cannot be empty")
	}
	if len(pattern) > maxPatternLength {
		return nil, fmt.Errorf("regex pattern exceeds maximum length of %d bytes", maxPatternLength)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("regex timeout must be positive, got %v", timeout)
	}

	re, err := regexp2.Compile(pattern, regexp2.RE2)
	if err != nil {
		return nil, fmt.Errorf("failed to compile regex pattern: %w", err)
	}
	re.MatchTimeout = timeout

	return &SafeRegex{pattern: pattern, re: re}, nil
}

// Pattern returns the source pattern.
func (r *SafeRegex) Pattern() string {
	return r.pattern
}

// MatchString reports whether the pattern matches input. A timeout counts as
// a non-match; the error distinguishes it when the caller cares.
func (r *SafeRegex) MatchString(input string) (bool, error) {
	matched, err := r.re.MatchString(input)
	if err != nil {
		return false, fmt.Errorf("regex match aborted: %w", err)
	}
	return matched, nil
}

// patternCache keeps compiled patterns so repeated rule evaluations do not
// recompile on every event.
var (
	patternCache   = make(map[string]*SafeRegex)
	patternCacheMu sync.RWMutex
)

// maxCachedPatterns caps the compiled-pattern cache. Rule sets are small;
// hitting the cap means something is generating patterns dynamically, and
// dropping the cache is cheaper than growing without bound.
const maxCachedPatterns = 1024

// MatchCached matches input against pattern, compiling and caching the
// pattern on first use.
func MatchCached(pattern, input string) (bool, error) {
	patternCacheMu.RLock()
	re, ok := patternCache[pattern]
	patternCacheMu.RUnlock()

	if !ok {
		var err error
		re, err = CompileSafe(pattern)
		if err != nil {
			return false, err
		}

		patternCacheMu.Lock()
		if len(patternCache) >= maxCachedPatterns {
			patternCache = make(map[string]*SafeRegex)
		}
		patternCache[pattern] = re
		patternCacheMu.Unlock()
	}

	return re.MatchString(input)
}
