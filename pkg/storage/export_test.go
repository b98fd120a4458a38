package storage

// SetRemoveDir replaces the directory removal used while pruning.
func SetRemoveDir(f *Filesystem, fn func(string) error) {
	f.removeDir = fn
}
