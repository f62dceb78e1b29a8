package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MountMode defines the permission level for a mount point.
type MountMode int

const (
	// MountReadOnly allows only read operations.
	MountReadOnly MountMode = iota
	// MountReadWrite allows read and write operations to existing files/dirs.
	MountReadWrite
	// MountReadWriteCreate allows read, write, and create operations.
	MountReadWriteCreate
)

const (
	DefaultFSMaxFileSize   = 10 << 20
	DefaultFSMaxWriteSize  = 10 << 20
	DefaultFSMaxPathLength = 4096
)

// ParseMountMode maps "ro", "rw" and "rwc" to a MountMode.
func ParseMountMode(s string) (MountMode, error) {
	switch s {
	case "ro", "":
		return MountReadOnly, nil
	case "rw":
		return MountReadWrite, nil
	case "rwc":
		return MountReadWriteCreate, nil
	}
	return 0, fmt.Errorf("invalid mount mode %q (expected ro, rw, or rwc)", s)
}

// Mount represents a virtual path mapped to a host path with specific permissions.
type Mount struct {
	VirtualPath string    // Path as seen by executed code (e.g., "/data")
	HostPath    string    // Actual path on host filesystem
	Mode        MountMode // Permission level
}

// FSOption configures size limits of an FS.
type FSOption func(*FS)

func WithMaxFileSize(n int64) FSOption {
	return func(f *FS) { f.maxFileSize = n }
}

func WithMaxWriteSize(n int64) FSOption {
	return func(f *FS) { f.maxWriteSize = n }
}

func WithMaxPathLength(n int) FSOption {
	return func(f *FS) { f.maxPathLength = n }
}

// FS provides filesystem operations restricted to explicit mount points.
type FS struct {
	mounts        []Mount
	maxFileSize   int64
	maxWriteSize  int64
	maxPathLength int
	mu            sync.RWMutex
}

// NewFS creates a new filesystem handler with the given mount points.
func NewFS(mounts []Mount, opts ...FSOption) *FS {
	normalized := make([]Mount, 0, len(mounts))
	for _, m := range mounts {
		// Ensure virtual path starts with / and has no trailing slash
		vp := "/" + strings.Trim(m.VirtualPath, "/")
		hp, err := filepath.Abs(m.HostPath)
		if err != nil {
			continue
		}
		normalized = append(normalized, Mount{
			VirtualPath: vp,
			HostPath:    hp,
			Mode:        m.Mode,
		})
	}
	f := &FS{
		mounts:        normalized,
		maxFileSize:   DefaultFSMaxFileSize,
		maxWriteSize:  DefaultFSMaxWriteSize,
		maxPathLength: DefaultFSMaxPathLength,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Register adds the fs_* host functions to r.
func (f *FS) Register(r *Registry) {
	r.Register("fs_read", f.Read)
	r.Register("fs_write", f.Write)
	r.Register("fs_list", f.List)
	r.Register("fs_exists", f.Exists)
	r.Register("fs_mkdir", f.Mkdir)
	r.Register("fs_remove", f.Remove)
	r.Register("fs_stat", f.Stat)
}

// resolve maps a virtual path to a host path, checking permissions.
func (f *FS) resolve(virtualPath string, needWrite bool) (string, error) {
	if len(virtualPath) > f.maxPathLength {
		return "", errors.New("path exceeds max length")
	}

	m := f.findMount(virtualPath)
	if m == nil {
		return "", errors.New("permission denied: path not in any mount")
	}
	if needWrite && m.Mode == MountReadOnly {
		return "", errors.New("permission denied: read-only mount")
	}

	vp := filepath.Clean("/" + strings.TrimPrefix(virtualPath, "/"))
	relPath := strings.TrimPrefix(vp, m.VirtualPath)
	if relPath == "" {
		relPath = "/"
	}

	absHostPath, err := filepath.Abs(filepath.Join(m.HostPath, relPath))
	if err != nil {
		return "", errors.New("invalid path")
	}
	if absHostPath != m.HostPath && !strings.HasPrefix(absHostPath, m.HostPath+string(filepath.Separator)) {
		return "", errors.New("permission denied: path escape attempt")
	}
	return absHostPath, nil
}

// ReadFile reads a whole file through the mount table.
func (f *FS) ReadFile(path string) ([]byte, error) {
	hostPath, err := f.resolve(path, false)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(hostPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("file not found: " + path)
		}
		return nil, errors.New("read error: " + err.Error())
	}
	if info.Size() > f.maxFileSize {
		return nil, fmt.Errorf("file exceeds max size of %d bytes", f.maxFileSize)
	}

	data, err := os.ReadFile(hostPath)
	if err != nil {
		return nil, errors.New("read error: " + err.Error())
	}
	return data, nil
}

// Read returns the contents of a file as a string.
func (f *FS) Read(ctx context.Context, args []any) (any, error) {
	if err := checkArity(args, 1, 1); err != nil {
		return nil, err
	}
	path, err := stringArg(args, 0, "path")
	if err != nil {
		return nil, err
	}
	data, err := f.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Write replaces the contents of a file.
func (f *FS) Write(ctx context.Context, args []any) (any, error) {
	if err := checkArity(args, 2, 2); err != nil {
		return nil, err
	}
	path, err := stringArg(args, 0, "path")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, 1, "content")
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > f.maxWriteSize {
		return nil, fmt.Errorf("content exceeds max size of %d bytes", f.maxWriteSize)
	}

	hostPath, err := f.resolve(path, true)
	if err != nil {
		return nil, err
	}

	// MountReadWrite can't create new files
	if _, statErr := os.Stat(hostPath); os.IsNotExist(statErr) {
		mount := f.findMount(path)
		if mount == nil || mount.Mode != MountReadWriteCreate {
			return nil, errors.New("permission denied: cannot create new files")
		}
	}

	if err := os.WriteFile(hostPath, []byte(content), 0644); err != nil {
		return nil, errors.New("write error: " + err.Error())
	}
	return nil, nil
}

// List returns the entries of a directory as {name, is_dir, size} mappings.
func (f *FS) List(ctx context.Context, args []any) (any, error) {
	if err := checkArity(args, 1, 1); err != nil {
		return nil, err
	}
	path, err := stringArg(args, 0, "path")
	if err != nil {
		return nil, err
	}

	hostPath, err := f.resolve(path, false)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(hostPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("directory not found: " + path)
		}
		return nil, errors.New("list error: " + err.Error())
	}

	result := make([]any, 0, len(entries))
	for _, entry := range entries {
		item := map[string]any{
			"name":   entry.Name(),
			"is_dir": entry.IsDir(),
		}
		if info, err := entry.Info(); err == nil {
			item["size"] = info.Size()
		}
		result = append(result, item)
	}
	return result, nil
}

// Exists reports whether a path exists. Paths outside every mount do not.
func (f *FS) Exists(ctx context.Context, args []any) (any, error) {
	if err := checkArity(args, 1, 1); err != nil {
		return nil, err
	}
	path, err := stringArg(args, 0, "path")
	if err != nil {
		return nil, err
	}

	hostPath, err := f.resolve(path, false)
	if err != nil {
		return false, nil
	}
	_, err = os.Stat(hostPath)
	return err == nil, nil
}

func (f *FS) Mkdir(ctx context.Context, args []any) (any, error) {
	if err := checkArity(args, 1, 1); err != nil {
		return nil, err
	}
	path, err := stringArg(args, 0, "path")
	if err != nil {
		return nil, err
	}

	hostPath, err := f.resolve(path, true)
	if err != nil {
		return nil, err
	}
	if mount := f.findMount(path); mount == nil || mount.Mode != MountReadWriteCreate {
		return nil, errors.New("permission denied: cannot create directories")
	}

	if err := os.MkdirAll(hostPath, 0755); err != nil {
		return nil, errors.New("mkdir error: " + err.Error())
	}
	return nil, nil
}

// Remove deletes a file or empty directory.
func (f *FS) Remove(ctx context.Context, args []any) (any, error) {
	if err := checkArity(args, 1, 1); err != nil {
		return nil, err
	}
	path, err := stringArg(args, 0, "path")
	if err != nil {
		return nil, err
	}

	hostPath, err := f.resolve(path, true)
	if err != nil {
		return nil, err
	}

	if err := os.Remove(hostPath); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("file not found: " + path)
		}
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) && strings.Contains(pathErr.Error(), "directory not empty") {
			return nil, errors.New("directory not empty: " + path)
		}
		return nil, errors.New("remove error: " + err.Error())
	}
	return nil, nil
}

// Stat returns {name, size, is_dir, mod_time} for a path.
func (f *FS) Stat(ctx context.Context, args []any) (any, error) {
	if err := checkArity(args, 1, 1); err != nil {
		return nil, err
	}
	path, err := stringArg(args, 0, "path")
	if err != nil {
		return nil, err
	}

	hostPath, err := f.resolve(path, false)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(hostPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("file not found: " + path)
		}
		return nil, errors.New("stat error: " + err.Error())
	}

	return map[string]any{
		"name":     info.Name(),
		"size":     info.Size(),
		"is_dir":   info.IsDir(),
		"mod_time": info.ModTime().Unix(),
	}, nil
}

// findMount finds the mount for a given virtual path.
func (f *FS) findMount(virtualPath string) *Mount {
	f.mu.RLock()
	defer f.mu.RUnlock()

	vp := filepath.Clean("/" + strings.TrimPrefix(virtualPath, "/"))

	for i := range f.mounts {
		m := &f.mounts[i]
		if vp == m.VirtualPath || m.VirtualPath == "/" || strings.HasPrefix(vp, m.VirtualPath+"/") {
			return m
		}
	}
	return nil
}
