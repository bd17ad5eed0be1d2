// Package fusefs is the only package that binds pkg/vfs to
// github.com/hanwen/go-fuse/v2. It translates vfs.Stat/errors into
// fuse.Attr/syscall.Errno and otherwise defers every decision to the bound
// vfs.MountState.
package fusefs

import (
	"context"
	"errors"
	"os"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/pchambers/ucifs/pkg/utils"
	"github.com/pchambers/ucifs/pkg/vfs"
)

var logger = utils.GetLogger("fusefs")

// RootNode is the single directory the mount exposes: one entry per
// configuration package, no subdirectories.
type RootNode struct {
	fs.Inode
	mount *vfs.MountState
}

var _ fs.NodeLookuper = (*RootNode)(nil)
var _ fs.NodeReaddirer = (*RootNode)(nil)
var _ fs.NodeGetattrer = (*RootNode)(nil)
var _ fs.NodeCreater = (*RootNode)(nil)

// NewRoot returns the fs.InodeEmbedder to hand to fs.Mount as the tree root.
func NewRoot(mount *vfs.MountState) fs.InodeEmbedder {
	return &RootNode{mount: mount}
}

func (r *RootNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	setAttr(&out.Attr, r.mount.RootStat())
	return 0
}

func (r *RootNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	names, err := r.mount.Entries()
	if err != nil {
		logger.Errorf("readdir: %s", err)
		return nil, syscall.EIO
	}
	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, fuse.DirEntry{Name: trimSlash(name), Mode: syscall.S_IFREG})
	}
	return fs.NewListDirStream(entries), 0
}

func (r *RootNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	e, err := r.mount.Lookup("/" + name)
	if err != nil {
		return nil, toErrno(err)
	}
	setAttr(&out.Attr, r.mount.Stat(e))
	node := &PackageNode{mount: r.mount, entry: e}
	return r.NewInode(ctx, node, fs.StableAttr{Mode: syscall.S_IFREG}), 0
}

// Create implements O_CREAT for a package name the reconciler has not yet
// seen. There is no mkdir or rename; opening a not-yet-existing package by
// name is the only creation path, and it works the way config-management
// tools expect.
func (r *RootNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	e, err := r.mount.Create("/"+name, os.FileMode(mode)&os.ModePerm)
	if err != nil {
		return nil, nil, 0, toErrno(err)
	}
	setAttr(&out.Attr, r.mount.Stat(e))
	node := &PackageNode{mount: r.mount, entry: e}
	inode := r.NewInode(ctx, node, fs.StableAttr{Mode: syscall.S_IFREG})
	return inode, &FileHandle{mount: r.mount, entry: e}, 0, 0
}

// PackageNode is one configuration package's file.
type PackageNode struct {
	fs.Inode
	mount *vfs.MountState
	entry *vfs.FileEntry
}

var _ fs.NodeGetattrer = (*PackageNode)(nil)
var _ fs.NodeSetattrer = (*PackageNode)(nil)
var _ fs.NodeOpener = (*PackageNode)(nil)

func (p *PackageNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	setAttr(&out.Attr, p.mount.Stat(p.entry))
	return 0
}

func (p *PackageNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if err := p.mount.Truncate(p.entry, int64(size)); err != nil {
			return toErrno(err)
		}
	}
	setAttr(&out.Attr, p.mount.Stat(p.entry))
	return 0
}

func (p *PackageNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&syscall.O_TRUNC != 0 {
		// Drop the buffer and zero the size up front rather than populating
		// and then truncating.
		if err := p.mount.Truncate(p.entry, 0); err != nil {
			return nil, 0, toErrno(err)
		}
	} else if err := p.mount.Populate(p.entry); err != nil {
		logger.Warnf("populate %s: %s", p.entry, err)
		return nil, 0, syscall.EIO
	}
	return &FileHandle{mount: p.mount, entry: p.entry}, fuse.FOPEN_KEEP_CACHE, 0
}

// FileHandle binds one open() of a package file to its vfs.FileEntry.
type FileHandle struct {
	mount *vfs.MountState
	entry *vfs.FileEntry
}

var _ fs.FileReader = (*FileHandle)(nil)
var _ fs.FileWriter = (*FileHandle)(nil)
var _ fs.FileFlusher = (*FileHandle)(nil)
var _ fs.FileReleaser = (*FileHandle)(nil)

func (h *FileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, _ := h.mount.Read(h.entry, off, dest)
	return fuse.ReadResultData(dest[:n]), 0
}

func (h *FileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, err := h.mount.Write(h.entry, off, data)
	if err != nil {
		return 0, toErrno(err)
	}
	return uint32(n), 0
}

// Flush commits a dirty entry on every close(2) of a descriptor, not only on
// the final release, so each close of a dup'd descriptor commits too. There
// is no Fsync handler; fsync(2) does not commit.
func (h *FileHandle) Flush(ctx context.Context) syscall.Errno {
	if err := h.mount.Release(h.entry); err != nil {
		logger.Warnf("flush %s: %s", h.entry, err)
	}
	return 0
}

func (h *FileHandle) Release(ctx context.Context) syscall.Errno {
	if err := h.mount.Release(h.entry); err != nil {
		logger.Warnf("release %s: %s", h.entry, err)
	}
	return 0
}

func setAttr(out *fuse.Attr, st vfs.Stat) {
	out.Mode = uint32(st.Mode.Perm())
	if st.Mode.IsDir() {
		out.Mode |= syscall.S_IFDIR
	} else {
		out.Mode |= syscall.S_IFREG
	}
	out.Size = uint64(st.Size)
	out.Nlink = st.Nlink
	out.Uid = st.Uid
	out.Gid = st.Gid
	atime, mtime, ctime := st.Atime, st.Mtime, st.Ctime
	out.SetTimes(&atime, &mtime, &ctime)
}

// toErrno maps the sentinel errors pkg/vfs defines to syscall.Errno values.
func toErrno(err error) syscall.Errno {
	switch {
	case errors.Is(err, vfs.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, vfs.ErrInvalidArgument):
		return syscall.EINVAL
	case errors.Is(err, vfs.ErrNoMemory):
		return syscall.ENOMEM
	default:
		return syscall.EIO
	}
}

func trimSlash(path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path[1:]
	}
	return path
}
