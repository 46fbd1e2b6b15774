package types

import "io/fs"

// FS abstracts the filesystem operations the synchronizer performs, so sync
// logic can be exercised without touching the real tree.
type FS interface {
	Stat(name string) (fs.FileInfo, error)
	Lstat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.DirEntry, error)

	MkdirAll(path string, perm fs.FileMode) error

	Symlink(oldname, newname string) error
	Readlink(name string) (string, error)

	Remove(name string) error
	Rename(oldpath, newpath string) error
}
