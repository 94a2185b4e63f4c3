// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package blockstore stores serialized blocks and their undo data.

Records are appended to numbered logical files and addressed by FilePos.  A
record never changes once written.  Whole files are deleted by PruneFiles once
the chain no longer needs the history they contain.  Writes are buffered until
Sync so callers can order the durability of block data ahead of the index
entries that reference it.
*/
package blockstore
