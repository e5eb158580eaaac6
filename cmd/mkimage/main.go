// Command mkimage builds a flat filesystem image in the byte layout
// src/fs.Reader expects (boot block, inode table, data blocks) from a
// txtar archive: one "-- <name> --" section per file, read
// with golang.org/x/tools/txtar the way the corpus uses it for
// bundling multiple named text blobs into one portable source file.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/tools/txtar"

	"n391kernel/src/defs"
	"n391kernel/src/fs"
)

func main() {
	in := flag.String("in", "", "txtar archive listing one file per txtar section")
	out := flag.String("out", "image.bin", "path to write the built image to")
	flag.Parse()

	if *in == "" {
		log.Fatal("mkimage: -in is required")
	}

	data, err := os.ReadFile(*in)
	if err != nil {
		log.Fatal(err)
	}
	arc := txtar.Parse(data)

	img, err := build(arc)
	if err != nil {
		log.Fatal(err)
	}

	if err := os.WriteFile(*out, img, 0o644); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("wrote %s: %d bytes, %d directory entries\n", *out, len(img), len(arc.Files)+1)
}

type fsEntry struct {
	name string
	typ  uint32
	data []byte
}

// build lays out the boot block, one inode per entry, and the data
// blocks those inodes reference, exactly as fs.Reader parses them: word
// 0/4/8 of the boot block are the directory-entry/inode/data-block
// counts, 64-byte dentries follow at byte fs.DentrySize of that same
// boot block, one inode block per
// file at fs.BlockSize*(1+i) whose first word is the file size and
// whose following words are data-block indices, and the data blocks
// themselves start at fs.BlockSize*(1+numInodes).
//
// Every built image carries a synthetic "." directory entry first,
// matching the original's own root listing; "rtc"/"stat"/"prof" are
// deliberately never added here since src/sysc reaches them only
// through its pseudo-file registry, never through a directory entry.
func build(arc *txtar.Archive) ([]byte, error) {
	entries := []fsEntry{{name: ".", typ: uint32(fs.TypeDir)}}
	for _, f := range arc.Files {
		if len(f.Name) > defs.NameMax {
			return nil, fmt.Errorf("mkimage: name %q exceeds %d bytes", f.Name, defs.NameMax)
		}
		entries = append(entries, fsEntry{name: f.Name, typ: uint32(fs.TypeFile), data: f.Data})
	}

	numInodes := len(entries)
	blocksPer := make([]int, numInodes)
	totalData := 0
	for i, e := range entries {
		n := (len(e.data) + fs.BlockSize - 1) / fs.BlockSize
		blocksPer[i] = n
		totalData += n
	}

	size := fs.BlockSize * (1 + numInodes + totalData)
	img := make([]byte, size)
	putLE32(img, 0, uint32(len(entries)))
	putLE32(img, 4, uint32(numInodes))
	putLE32(img, 8, uint32(totalData))

	dataCursor := 0
	for i, e := range entries {
		off := fs.DentrySize + i*fs.DentrySize
		copy(img[off:off+defs.NameMax], e.name)
		putLE32(img, off+defs.NameMax, e.typ)
		putLE32(img, off+defs.NameMax+4, uint32(i))

		ioff := fs.BlockSize * (1 + i)
		putLE32(img, ioff, uint32(len(e.data)))
		for b := 0; b < blocksPer[i]; b++ {
			putLE32(img, ioff+4*(b+1), uint32(dataCursor+b))
		}

		doff := fs.BlockSize * (1 + numInodes + dataCursor)
		copy(img[doff:], e.data)
		dataCursor += blocksPer[i]
	}
	return img, nil
}

func putLE32(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}
