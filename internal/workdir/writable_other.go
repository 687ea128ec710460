//go:build !unix

package workdir

import "os"

// isWritable probes by creating a temporary file.
func isWritable(path string) bool {
	f, err := os.CreateTemp(path, ".medallion-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
