/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package corpus persists compressed benchmark output so a later decompress
run can replay it.

FILE FORMAT:
============
All integers are little-endian uint32.

	+-----------+-------------+------------------------------+
	| FileSize  | BlockCount  | BlockSizes[BlockCount]       |
	+-----------+-------------+------------------------------+
	| block 0 (BlockSizes[0] bytes) | block 1 | ... | block N-1 |
	+--------------------------------------------------------+

FileSize is the sum of BlockSizes. The file name is derived from the payload
length and algorithm: zip_<pktlen>.<alg>.

SAVE:
=====
Save never overwrites. An existing file is left untouched and reported as
skipped. A sibling .lock file held with github.com/gofrs/flock keeps
concurrent runs from interleaving writes. Partial writes are not rolled back.

LOAD:
=====
Load maps the file read-only (github.com/tysonmote/gommap) and requires
BlockCount to equal the caller's pool size. Blocks are read in order; the
first block that yields zero bytes marks end-of-data and every later block
loads empty. A block cut short by the end of the file loads short.
*/
package corpus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/tysonmote/gommap"
)

var (
	ErrNotFound       = errors.New("corpus: file not found")
	ErrHeaderMismatch = errors.New("corpus: header mismatch")
	ErrLocked         = errors.New("corpus: file is locked by another run")
)

const word = 4

// FileName returns the corpus file name for a payload length and algorithm.
func FileName(pktLen uint32, alg string) string {
	return fmt.Sprintf("zip_%d.%s", pktLen, alg)
}

// Path joins dir and FileName.
func Path(dir string, pktLen uint32, alg string) string {
	return filepath.Join(dir, FileName(pktLen, alg))
}

// Header is the fixed-layout file header.
type Header struct {
	FileSize   uint32
	BlockCount uint32
	BlockSizes []uint32
}

// HeaderSize returns the encoded header length for n blocks.
func HeaderSize(n int) int {
	return 2*word + n*word
}

// MarshalBinary encodes the header.
func (h Header) MarshalBinary() ([]byte, error) {
	if int(h.BlockCount) != len(h.BlockSizes) {
		return nil, fmt.Errorf("%w: count %d with %d sizes", ErrHeaderMismatch, h.BlockCount, len(h.BlockSizes))
	}
	buf := make([]byte, HeaderSize(len(h.BlockSizes)))
	binary.LittleEndian.PutUint32(buf[0:], h.FileSize)
	binary.LittleEndian.PutUint32(buf[word:], h.BlockCount)
	for i, sz := range h.BlockSizes {
		binary.LittleEndian.PutUint32(buf[2*word+i*word:], sz)
	}
	return buf, nil
}

// decodeHeader parses a header that must describe exactly blocks blocks.
func decodeHeader(data []byte, blocks int) (Header, error) {
	if len(data) < 2*word {
		return Header{}, fmt.Errorf("%w: truncated header", ErrHeaderMismatch)
	}
	h := Header{
		FileSize:   binary.LittleEndian.Uint32(data[0:]),
		BlockCount: binary.LittleEndian.Uint32(data[word:]),
	}
	if int(h.BlockCount) != blocks {
		return Header{}, fmt.Errorf("%w: file has %d blocks, pool has %d", ErrHeaderMismatch, h.BlockCount, blocks)
	}
	if len(data) < HeaderSize(blocks) {
		return Header{}, fmt.Errorf("%w: truncated block table", ErrHeaderMismatch)
	}
	h.BlockSizes = make([]uint32, blocks)
	for i := range h.BlockSizes {
		h.BlockSizes[i] = binary.LittleEndian.Uint32(data[2*word+i*word:])
	}
	return h, nil
}

// SaveResult describes what Save did.
type SaveResult struct {
	Path      string
	Skipped   bool
	TotalSize uint32
	// Rate is the stored size over pktLen times the block count.
	Rate float64
}

// Save writes blocks to path unless the file already exists.
func Save(path string, blocks [][]byte, pktLen uint32) (SaveResult, error) {
	res := SaveResult{Path: path}

	lock := flock.New(path + ".lock")
	held, err := lock.TryLock()
	if err != nil {
		return res, fmt.Errorf("corpus: lock %s: %w", path, err)
	}
	if !held {
		return res, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(path + ".lock")
	}()

	if _, err := os.Stat(path); err == nil {
		res.Skipped = true
		return res, nil
	}

	h := Header{BlockCount: uint32(len(blocks)), BlockSizes: make([]uint32, len(blocks))}
	for i, b := range blocks {
		h.BlockSizes[i] = uint32(len(b))
		h.FileSize += uint32(len(b))
	}
	head, err := h.MarshalBinary()
	if err != nil {
		return res, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			res.Skipped = true
			return res, nil
		}
		return res, fmt.Errorf("corpus: create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(head); err != nil {
		return res, fmt.Errorf("corpus: write header: %w", err)
	}
	for i, b := range blocks {
		if _, err := f.Write(b); err != nil {
			return res, fmt.Errorf("corpus: write block %d: %w", i, err)
		}
	}

	res.TotalSize = h.FileSize
	if full := uint64(pktLen) * uint64(len(blocks)); full > 0 {
		res.Rate = float64(h.FileSize) / float64(full)
	}
	return res, nil
}

// Load reads a corpus written for a pool of blocks entries. The returned
// blocks are copies and stay valid after Load returns.
func Load(path string, blocks int) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("corpus: open %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("corpus: stat %s: %w", path, err)
	}
	if fi.Size() < int64(2*word) {
		return nil, fmt.Errorf("%w: truncated header", ErrHeaderMismatch)
	}

	m, err := gommap.Map(f.Fd(), gommap.PROT_READ, gommap.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("corpus: map %s: %w", path, err)
	}
	defer m.UnsafeUnmap()

	h, err := decodeHeader(m, blocks)
	if err != nil {
		return nil, err
	}

	out := make([][]byte, blocks)
	pos := HeaderSize(blocks)
	ended := false
	for i, sz := range h.BlockSizes {
		if ended {
			out[i] = []byte{}
			continue
		}
		n := int(sz)
		if remaining := len(m) - pos; n > remaining {
			n = remaining
		}
		if n <= 0 {
			ended = true
			out[i] = []byte{}
			continue
		}
		out[i] = append([]byte(nil), m[pos:pos+n]...)
		pos += n
	}
	return out, nil
}
