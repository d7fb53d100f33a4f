// Command jobpool drives a threadpool with demo jobs, optionally crashing the process from inside
// a job, and can supervise itself to restart after such a crash.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
