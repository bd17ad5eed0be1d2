package vfs

import (
	"os"
	"time"
)

// Stat is the stat-like attribute set carried by both the root directory and
// every FileEntry, kept free of any particular FUSE binding so pkg/fusefs is
// the only place that knows about syscall.Stat_t/fuse.Attr.
type Stat struct {
	Mode  os.FileMode
	Size  int64
	Nlink uint32
	Uid   uint32
	Gid   uint32
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// defaultFileMode is substituted whenever a FileEntry is created with
// mode == 0.
const defaultFileMode = os.FileMode(0644)

const rootMode = os.ModeDir | 0644
const rootSize = 1024
const initialFileSize = 1024
