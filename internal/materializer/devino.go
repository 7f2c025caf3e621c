// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package materializer

// devIno identifies a regular file by (device, inode), the key the
// dev/ino cache uses: a map from (device, inode) to the jail path
// already holding a copy of that file, so a second manifest entry
// pointing at the same host file can be hard-linked instead of
// copied again.
type devIno struct {
	dev uint64
	ino uint64
}

// devInoCache tracks which (dev, ino) pairs have already been
// materialized into the destination tree, and where.
type devInoCache struct {
	seen map[devIno]string
}

func newDevInoCache() *devInoCache {
	return &devInoCache{seen: make(map[devIno]string)}
}

// Lookup returns the jail path previously recorded for (dev, ino), if
// any.
func (c *devInoCache) Lookup(dev, ino uint64) (string, bool) {
	dst, ok := c.seen[devIno{dev, ino}]
	return dst, ok
}

// Record remembers that (dev, ino) now lives at dst.
func (c *devInoCache) Record(dev, ino uint64, dst string) {
	c.seen[devIno{dev, ino}] = dst
}
