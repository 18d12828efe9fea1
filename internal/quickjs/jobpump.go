//go:build !v8

package quickjs

import (
	"modernc.org/libc"
	lib "modernc.org/libquickjs"
)

// executePendingJobs runs all pending microtasks (Promise callbacks, etc.) in
// the QuickJS runtime. The modernc.org/quickjs Go wrapper never calls
// JS_ExecutePendingJob, so Promise .then() callbacks would otherwise never
// fire.
//
// Returns the number of jobs executed.
func executePendingJobs(tls *libc.TLS, rt uintptr) int {
	if tls == nil || rt == 0 {
		return 0
	}

	count := 0
	for {
		ret := lib.XJS_ExecutePendingJob(tls, rt, 0)
		if ret <= 0 {
			break
		}
		count++
	}
	return count
}
