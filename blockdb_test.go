// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/xecnode/xecd/chaincfg"
)

// importRecord returns the import file record for the passed serialized block
// using the provided network magic and length prefix.
func importRecord(magic, length uint32, serialized []byte) []byte {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], magic)
	binary.LittleEndian.PutUint32(hdr[4:8], length)
	return append(hdr[:], serialized...)
}

// TestReadImportBlock ensures records of an import file are decoded and that
// malformed records are rejected.
func TestReadImportBlock(t *testing.T) {
	t.Parallel()

	params := chaincfg.RegNetParams()
	var buf bytes.Buffer
	if err := params.GenesisBlock.Serialize(&buf); err != nil {
		t.Fatalf("unable to serialize genesis block: %v", err)
	}
	genesis := buf.Bytes()
	magic := uint32(params.Net)
	genesisLen := uint32(len(genesis))

	// Two well-formed records followed by the end of the input.
	var input []byte
	input = append(input, importRecord(magic, genesisLen, genesis)...)
	input = append(input, importRecord(magic, genesisLen, genesis)...)
	r := bytes.NewReader(input)
	for i := 0; i < 2; i++ {
		block, err := readImportBlock(r, params.Net)
		if err != nil {
			t.Fatalf("record %d: unexpected error: %v", i, err)
		}
		if block == nil {
			t.Fatalf("record %d: unexpected end of input", i)
		}
		if *block.Hash() != params.GenesisHash {
			t.Fatalf("record %d: unexpected block hash -- got %v, want %v",
				i, block.Hash(), params.GenesisHash)
		}
	}
	block, err := readImportBlock(r, params.Net)
	if err != nil || block != nil {
		t.Fatalf("unexpected result at end of input: %v, %v", block, err)
	}

	tests := []struct {
		name    string
		input   []byte
		wantEOF bool
	}{{
		name:  "wrong network",
		input: importRecord(magic+1, genesisLen, genesis),
	}, {
		name:  "oversized block",
		input: importRecord(magic, maxImportBlockSize+1, genesis),
	}, {
		name:    "truncated block",
		input:   importRecord(magic, genesisLen, genesis[:len(genesis)-1]),
		wantEOF: true,
	}, {
		name:    "truncated header",
		input:   importRecord(magic, genesisLen, nil)[:5],
		wantEOF: true,
	}, {
		name:  "garbage block",
		input: importRecord(magic, 4, []byte{0x01, 0x02, 0x03, 0x04}),
	}}

	for _, test := range tests {
		block, err := readImportBlock(bytes.NewReader(test.input), params.Net)
		if err == nil {
			t.Errorf("%q: did not receive expected error (block %v)",
				test.name, block)
			continue
		}
		if test.wantEOF && !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("%q: unexpected error -- got %v, want %v", test.name,
				err, io.ErrUnexpectedEOF)
		}
	}
}
