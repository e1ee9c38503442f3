//go:build linux

package sidecar

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const xattrNamespace = "user."

// Xattr keeps attributes in the file's extended attributes. They live in
// the inode, so an atomic replace drops them.
type Xattr struct{}

func NewXattr() *Xattr { return &Xattr{} }

func (x *Xattr) Get(path, key string) ([]byte, bool, error) {
	name := xattrNamespace + key
	size, err := unix.Getxattr(path, name, nil)
	if err != nil {
		if errors.Is(err, unix.ENODATA) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("sidecar: getxattr %s: %w", key, err)
	}
	if size == 0 {
		return []byte{}, true, nil
	}
	buf := make([]byte, size)
	n, err := unix.Getxattr(path, name, buf)
	if err != nil {
		return nil, false, fmt.Errorf("sidecar: getxattr %s: %w", key, err)
	}
	return buf[:n], true, nil
}

func (x *Xattr) Set(path, key string, value []byte) error {
	if err := unix.Setxattr(path, xattrNamespace+key, value, 0); err != nil {
		return fmt.Errorf("sidecar: setxattr %s: %w", key, err)
	}
	return nil
}

func (x *Xattr) Close() error { return nil }

// XattrSupported probes dir by setting a user attribute on a scratch file.
func XattrSupported(dir string) bool {
	f, err := os.CreateTemp(dir, ".vellum-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	defer os.Remove(name)

	return unix.Setxattr(name, xattrNamespace+"vellum.probe", []byte("1"), 0) == nil
}
