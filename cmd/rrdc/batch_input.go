package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// maxDecoderMemory caps the zstd window; the default allows up to 1GB.
const maxDecoderMemory = uint64(1 << 25)

// openBatchFile opens a batch file, decompressing by extension
// (.gz, .zst). The caller closes the result.
func openBatchFile(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}

	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		zr, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("open gzip batch file: %w", err)
		}
		return multiReadCloser{r: zr, c: file}, nil
	case strings.HasSuffix(lower, ".zst"):
		zr, err := zstd.NewReader(file, zstd.WithDecoderMaxMemory(maxDecoderMemory))
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("open zstd batch file: %w", err)
		}
		return zstdReadCloser{r: zr, c: file}, nil
	default:
		return file, nil
	}
}

// zstd.Decoder.Close has no error result.
type zstdReadCloser struct {
	r *zstd.Decoder
	c io.Closer
}

func (z zstdReadCloser) Read(p []byte) (int, error) {
	return z.r.Read(p)
}

func (z zstdReadCloser) Close() error {
	z.r.Close()
	return z.c.Close()
}

type multiReadCloser struct {
	r io.ReadCloser
	c io.Closer
}

func (m multiReadCloser) Read(p []byte) (int, error) {
	return m.r.Read(p)
}

func (m multiReadCloser) Close() error {
	return errors.Join(m.r.Close(), m.c.Close())
}
