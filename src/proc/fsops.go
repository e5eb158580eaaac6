package proc

import (
	"n391kernel/src/defs"
	"n391kernel/src/fs"
)

// fileOps is the read-only vtable for regular files: Read delegates to
// the filesystem reader at the fd's own FilePosition, so two fds open on
// the same inode advance independently.
type fileOps struct {
	r *fs.Reader
}

// NewFileOps returns the vtable open() installs for a regular file.
func NewFileOps(r *fs.Reader) FileOps {
	return &fileOps{r: r}
}

func (f *fileOps) Read(fd *Fd, buf []byte) (int, defs.Err_t) {
	n, err := f.r.ReadData(fd.Inode, fd.FilePosition, buf, uint32(len(buf)))
	if err != nil {
		return -1, defs.ENXIO
	}
	fd.FilePosition += n
	return int(n), 0
}

func (f *fileOps) Write(fd *Fd, buf []byte) (int, defs.Err_t) { return -1, defs.EINVAL }
func (f *fileOps) Close(fd *Fd) defs.Err_t                    { return 0 }

// dirOps is the read-only vtable for directories. Read returns one
// entry's name per call and advances the fd's own FilePosition as the
// directory cursor — unlike the original's single module-level
// directoryLoc, this fd's cursor is independent of any other fd open on
// the same directory.
type dirOps struct {
	r *fs.Reader
}

// NewDirOps returns the vtable open() installs for a directory.
func NewDirOps(r *fs.Reader) FileOps {
	return &dirOps{r: r}
}

func (d *dirOps) Read(fd *Fd, buf []byte) (int, defs.Err_t) {
	dent, ok := d.r.LookupByIndex(fd.FilePosition)
	if !ok {
		return 0, 0
	}
	n := copy(buf, dent.Name)
	fd.FilePosition++
	return n, 0
}

func (d *dirOps) Write(fd *Fd, buf []byte) (int, defs.Err_t) { return -1, defs.EINVAL }
func (d *dirOps) Close(fd *Fd) defs.Err_t                    { return 0 }
