// Package chunkup - File sources
//
// This file provides the File implementations the library ships with: a
// local filesystem adapter and an in-memory adapter. Anything satisfying
// the File interface can be uploaded; ReadAt is the only read primitive
// the sessions use, so chunk reads need no shared seek position.
package chunkup

import (
	"bytes"
	"fmt"
	"mime"
	"os"
	"path/filepath"
)

// LocalFile adapts an *os.File for upload. Close it after the batch is
// done with it.
type LocalFile struct {
	f           *os.File
	name        string
	size        int64
	contentType string
}

// OpenLocalFile opens a file on disk for upload. The content type is
// guessed from the extension and may be empty.
func OpenLocalFile(path string) (*LocalFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &LocalFile{
		f:           f,
		name:        filepath.Base(path),
		size:        fi.Size(),
		contentType: mime.TypeByExtension(filepath.Ext(path)),
	}, nil
}

func (lf *LocalFile) ReadAt(p []byte, off int64) (int, error) { return lf.f.ReadAt(p, off) }
func (lf *LocalFile) Name() string                            { return lf.name }
func (lf *LocalFile) Size() int64                             { return lf.size }
func (lf *LocalFile) ContentType() string                     { return lf.contentType }

// Close releases the underlying file handle.
func (lf *LocalFile) Close() error { return lf.f.Close() }

// BytesFile is an in-memory File, convenient for generated payloads and tests.
type BytesFile struct {
	name        string
	contentType string
	r           *bytes.Reader
}

// NewBytesFile wraps a byte slice as an uploadable File.
func NewBytesFile(name, contentType string, data []byte) *BytesFile {
	return &BytesFile{name: name, contentType: contentType, r: bytes.NewReader(data)}
}

func (bf *BytesFile) ReadAt(p []byte, off int64) (int, error) { return bf.r.ReadAt(p, off) }
func (bf *BytesFile) Name() string                            { return bf.name }
func (bf *BytesFile) Size() int64                             { return bf.r.Size() }
func (bf *BytesFile) ContentType() string                     { return bf.contentType }
