//go:build !linux

// Command onvifd requires Linux: its request engine is built on the
// epoll reactor in internal/reactor, which has no portable equivalent.
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "onvifd: Linux is required (epoll-based request engine)")
	os.Exit(1)
}
