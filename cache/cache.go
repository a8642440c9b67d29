// Copyright 2024 The Mudcore Authors
// This file is part of Mudcore.
//
// Mudcore is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Mudcore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Mudcore. If not, see <http://www.gnu.org/licenses/>.

// Package cache implements the saved-binary collaborator (§6.3): compiled
// program blobs are kept hot in an in-memory fastcache and mirrored
// durably in a goleveldb store, keyed by the source path plus a validity
// preamble. The byte layout of a saved binary is unspecified (§6.3
// Non-goals); only the validity predicate is.
package cache

import (
	"encoding/binary"
	"errors"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/syndtr/goleveldb/leveldb"
)

// ErrNotFound is returned by Get when no entry (valid or not) exists for a
// path/stamp pair.
var ErrNotFound = errors.New("cache: no saved binary for this path/stamp")

// Stamp is the validity preamble a saved binary is checked against (§6.3):
// "the validity predicate (magic tag, driver-version stamp, config-mtime
// stamp, include-list match, no referenced source newer) is the only thing
// actually specified, not the byte layout." Stamp bundles those checks
// into one comparable value computed by the caller (the compiler
// collaborator), not by this package — cache only ever compares stamps for
// byte equality.
type Stamp struct {
	DriverVersion uint32
	ConfigMTime   int64
	SourceMTime   int64
	IncludeHash   uint64
}

func (s Stamp) encode() []byte {
	buf := make([]byte, 28)
	binary.BigEndian.PutUint32(buf[0:4], s.DriverVersion)
	binary.BigEndian.PutUint64(buf[4:12], uint64(s.ConfigMTime))
	binary.BigEndian.PutUint64(buf[12:20], uint64(s.SourceMTime))
	binary.BigEndian.PutUint64(buf[20:28], s.IncludeHash)
	return buf
}

// Cache is the two-tier saved-binary store: a fastcache front (bounded,
// fast, lossy under memory pressure) backed durably by goleveldb.
type Cache struct {
	hot *fastcache.Cache
	db  *leveldb.DB
}

// Open constructs a Cache with a hot tier of sizeBytes and a durable
// goleveldb store rooted at dbDir.
func Open(dbDir string, sizeBytes int) (*Cache, error) {
	db, err := leveldb.OpenFile(dbDir, nil)
	if err != nil {
		return nil, err
	}
	return &Cache{hot: fastcache.New(sizeBytes), db: db}, nil
}

// Close releases the durable store's file handles.
func (c *Cache) Close() error { return c.db.Close() }

func key(path string) []byte { return []byte(path + ".b") }

// Get returns the cached blob for path if its stamp matches want, checking
// the hot tier first and falling back to the durable tier on a miss
// (populating the hot tier for next time).
func (c *Cache) Get(path string, want Stamp) ([]byte, error) {
	k := key(path)
	if buf, ok := c.hot.HasGet(nil, k); ok {
		return splitStamped(buf, want)
	}
	raw, err := c.db.Get(k, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.hot.Set(k, raw)
	return splitStamped(raw, want)
}

func splitStamped(raw []byte, want Stamp) ([]byte, error) {
	if len(raw) < 28 {
		return nil, ErrNotFound
	}
	stampBytes, body := raw[:28], raw[28:]
	if string(stampBytes) != string(want.encode()) {
		return nil, ErrNotFound
	}
	return body, nil
}

// Put stores blob under path, stamped with stamp, in both tiers.
func (c *Cache) Put(path string, stamp Stamp, blob []byte) error {
	k := key(path)
	raw := append(stamp.encode(), blob...)
	c.hot.Set(k, raw)
	return c.db.Put(k, raw, nil)
}

// Invalidate removes path's cached entry from both tiers (e.g. on
// destructive recompilation or a DestructPrivileged replacement load).
func (c *Cache) Invalidate(path string) error {
	k := key(path)
	c.hot.Del(k)
	return c.db.Delete(k, nil)
}
