//go:build !unix

package watch

import "os"

// devIno carries no file identity on non-Unix platforms, where
// device/inode numbers aren't available; rotation detection there
// relies on the size-shrank check in poll alone.
type devIno struct{}

func statDevIno(os.FileInfo) devIno {
	return devIno{}
}
