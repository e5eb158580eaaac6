package main

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"

	"n391kernel/src/defs"
	"n391kernel/src/fs"
)

func TestBuildRoundTripsThroughFsReader(t *testing.T) {
	arc := txtar.Parse([]byte(`-- hello.txt --
hello world
-- prog --
` + "\x7fELF" + `
`))

	img, err := build(arc)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	r, err := fs.New(img)
	if err != nil {
		t.Fatalf("fs.New: %v", err)
	}

	dot, ok := r.LookupByIndex(0)
	if !ok || dot.Name != "." || dot.Type != fs.TypeDir {
		t.Fatalf("entry 0 = %+v, want a TypeDir \".\"", dot)
	}

	d, ok := r.LookupByName("hello.txt")
	if !ok || d.Type != fs.TypeFile {
		t.Fatalf("hello.txt not found or wrong type: %+v", d)
	}
	buf := make([]byte, 64)
	n, err := r.ReadData(d.Inode, 0, buf, uint32(len(buf)))
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if got := string(buf[:n]); !strings.HasPrefix(got, "hello world") {
		t.Fatalf("got %q", got)
	}

	prog, ok := r.LookupByName("prog")
	if !ok {
		t.Fatal("prog not found")
	}
	n2, err := r.ReadData(prog.Inode, 0, buf, 4)
	if err != nil || n2 != 4 || !bytes.Equal(buf[:4], []byte{0x7F, 'E', 'L', 'F'}) {
		t.Fatalf("prog header = %v, n=%d, err=%v", buf[:4], n2, err)
	}
}

func TestBuildSpansMultipleDataBlocks(t *testing.T) {
	big := bytes.Repeat([]byte("x"), fs.BlockSize+100)
	arc := &txtar.Archive{Files: []txtar.File{{Name: "big.bin", Data: big}}}

	img, err := build(arc)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	r, err := fs.New(img)
	if err != nil {
		t.Fatalf("fs.New: %v", err)
	}
	d, ok := r.LookupByName("big.bin")
	if !ok {
		t.Fatal("big.bin not found")
	}
	buf := make([]byte, len(big))
	n, err := r.ReadData(d.Inode, 0, buf, uint32(len(buf)))
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if n != uint32(len(big)) || !bytes.Equal(buf[:n], big) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", n, len(big))
	}
}

func TestBuildRejectsOverlongName(t *testing.T) {
	arc := &txtar.Archive{Files: []txtar.File{{Name: strings.Repeat("n", defs.NameMax+1), Data: []byte("x")}}}
	if _, err := build(arc); err == nil {
		t.Fatal("expected an error for an overlong name")
	}
}
