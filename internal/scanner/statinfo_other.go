//go:build windows

package scanner

import "os"

// devIno is unavailable on Windows: there is no POSIX inode. Identity then
// degrades to path-only matching, so a rename reads as remove+add.
func devIno(info os.FileInfo) (dev, ino uint64) { return 0, 0 }
