//go:build !linux && !darwin && !freebsd && !windows

package logger

import "os"

func isTerminal(*os.File) bool { return false }
