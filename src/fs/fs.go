// Package fs reads the flat, read-only filesystem image the bootloader
// hands the kernel at a fixed physical address: a boot block, an inode
// table, and a flat array of 4KiB data blocks. There is no write path and
// no block cache — the whole image lives in one byte slice for the life
// of the kernel.
package fs

import (
	"fmt"

	"n391kernel/src/defs"
	"n391kernel/src/util"
)

// BlockSize is the size in bytes of a data block and of the boot block
// and each inode block.
const BlockSize = 4096

// DentrySize is the size in bytes of one directory entry.
const DentrySize = 64

// File types recorded in a directory entry.
const (
	TypeRTC File = iota
	TypeDir
	TypeFile
)

// File is the type tag stored in a directory entry.
type File int

// Dentry is one 64-byte directory-entry record: a name, a type, and the
// inode it names (meaningless for TypeRTC).
type Dentry struct {
	Name  string
	Type  File
	Inode uint32
}

// Reader parses directory entries and file data out of a raw image. It
// holds no open-file state of its own: a directory read's cursor belongs
// to the file descriptor that's reading it, not to the Reader, so two
// concurrent opens of "." never interfere with each other.
type Reader struct {
	img []byte

	numDentries uint32
	numInodes   uint32
	numData     uint32
}

// New parses img's boot block and returns a Reader over it. img is not
// copied; the caller must not mutate it afterward.
func New(img []byte) (*Reader, error) {
	if len(img) < BlockSize {
		return nil, fmt.Errorf("fs: image shorter than one block")
	}
	r := &Reader{img: img}
	r.numDentries = util.Readn32(img, 0)
	r.numInodes = util.Readn32(img, 4)
	r.numData = util.Readn32(img, 8)
	need := BlockSize * (1 + int(r.numInodes) + int(r.numData))
	if len(img) < need {
		return nil, fmt.Errorf("fs: image too short for %d inodes + %d data blocks", r.numInodes, r.numData)
	}
	return r, nil
}

// LookupByName scans the D directory entries for an exact, length-bounded
// match of name. It rejects names longer than defs.NameMax before
// scanning, matching the original's strlen-then-compare rejection.
func (r *Reader) LookupByName(name string) (Dentry, bool) {
	if len(name) > defs.NameMax {
		return Dentry{}, false
	}
	for i := uint32(0); i < r.numDentries; i++ {
		d := r.dentryAt(i)
		if d.Name == name {
			return d, true
		}
	}
	return Dentry{}, false
}

// LookupByIndex returns the i'th directory entry in boot-block order.
func (r *Reader) LookupByIndex(i uint32) (Dentry, bool) {
	if i >= r.numDentries {
		return Dentry{}, false
	}
	return r.dentryAt(i), true
}

// NumDentries reports how many directory entries the image holds.
func (r *Reader) NumDentries() uint32 {
	return r.numDentries
}

// dentryAt reads the i'th directory entry out of the boot block, whose
// first DentrySize bytes hold the three counts and padding.
func (r *Reader) dentryAt(i uint32) Dentry {
	off := int(DentrySize + i*DentrySize)
	raw := r.img[off : off+defs.NameMax]
	end := len(raw)
	for j, b := range raw {
		if b == 0 {
			end = j
			break
		}
	}
	return Dentry{
		Name:  string(raw[:end]),
		Type:  File(util.Readn32(r.img, off+defs.NameMax)),
		Inode: util.Readn32(r.img, off+defs.NameMax+4),
	}
}

func (r *Reader) fileSize(inode uint32) uint32 {
	off := BlockSize * (1 + int(inode))
	return util.Readn32(r.img, off)
}

// ReadData copies up to length bytes of inode's data, starting at offset,
// into buf, and returns the number of bytes copied. It returns 0 at or
// past EOF, and an error if inode or any data-block index it walks is out
// of range.
//
// The multi-block exit path always returns the accumulated byte count,
// never a bare 0 on the last iteration — the original C implementation
// returns 0 there, which is a bug this reader does not reproduce.
func (r *Reader) ReadData(inode uint32, offset uint32, buf []byte, length uint32) (uint32, error) {
	if inode >= r.numInodes {
		return 0, fmt.Errorf("fs: inode %d out of range (have %d)", inode, r.numInodes)
	}
	fileSize := r.fileSize(inode)
	if offset >= fileSize {
		return 0, nil
	}
	if length+offset > fileSize {
		length = fileSize - offset
	}
	length = util.Min(length, uint32(len(buf)))

	inodeOff := BlockSize * (1 + int(inode))
	dataStart := BlockSize * (1 + int(r.numInodes))

	idxSlot := int(offset/BlockSize) + 1
	blockOff := offset % BlockSize

	var byteCount uint32
	for length > 0 {
		idx := util.Readn32(r.img, inodeOff+4*idxSlot)
		if idx >= r.numData {
			return 0, fmt.Errorf("fs: data block index %d out of range (have %d)", idx, r.numData)
		}
		srcOff := dataStart + BlockSize*int(idx) + int(blockOff)
		n := util.Min(BlockSize-blockOff, length)
		copy(buf[byteCount:byteCount+n], r.img[srcOff:srcOff+int(n)])

		byteCount += n
		length -= n
		idxSlot++
		blockOff = 0
	}
	return byteCount, nil
}
