//go:build !linux

package storage

import "time"

func birthTime(string) (time.Time, bool) { return time.Time{}, false }
