//go:build !unix

package lockfile

func isProcessRunning(pid int) bool {
	return pid > 0
}
