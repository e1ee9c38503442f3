//go:build !linux

package sidecar

import "errors"

// Xattr is unavailable on this platform; Open selects the index backend.
type Xattr struct{}

func NewXattr() *Xattr { return &Xattr{} }

func (x *Xattr) Get(string, string) ([]byte, bool, error) {
	return nil, false, errors.ErrUnsupported
}

func (x *Xattr) Set(string, string, []byte) error { return errors.ErrUnsupported }

func (x *Xattr) Close() error { return nil }

func XattrSupported(string) bool { return false }
