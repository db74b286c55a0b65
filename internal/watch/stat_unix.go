//go:build unix

package watch

import (
	"os"
	"syscall"
)

// devIno identifies a file's on-disk identity so rotation (replace by
// a different inode, possibly on a different device) can be told apart
// from an in-place append.
type devIno struct {
	dev uint64
	ino uint64
}

func statDevIno(info os.FileInfo) devIno {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return devIno{}
	}
	return devIno{dev: uint64(st.Dev), ino: st.Ino}
}
