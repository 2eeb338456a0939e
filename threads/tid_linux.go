// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package threads

import "golang.org/x/sys/unix"

// CurrentID returns the OS thread ID of the calling thread.
func CurrentID() int {
	return unix.Gettid()
}
