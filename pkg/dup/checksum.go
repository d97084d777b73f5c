package dup

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/cheggaaa/pb.v1"
)

// Source is the duplication input: either a single regular file treated as a
// raw image, or a directory treated as a file tree to sync onto partitioned
// targets. For image sources a read-back geometry is derived up front so the
// exact same byte range can be digested from each target device.
type Source struct {
	Path  string
	IsDir bool
	Size  int64

	// BlockSize and Blocks describe how the source bytes are read back from
	// a target: 512-byte blocks when the size is a multiple of 512,
	// otherwise single bytes.
	BlockSize int64
	Blocks    int64

	digestOnce sync.Once
	digest     string
	digestErr  error
}

// OpenSource stats and opens the source path. A missing or unreadable source
// is a configuration error reported before any device interaction.
func OpenSource(path string) (*Source, error) {
	if path == "" {
		return nil, fmt.Errorf("no source given; use --source")
	}

	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("source %s is not accessible: %w", path, err)
	}

	if st.IsDir() {
		return &Source{Path: path, IsDir: true}, nil
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("source %s is neither a regular file nor a directory", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source %s is not readable: %w", path, err)
	}
	f.Close()

	bs, count := blockGeometry(st.Size())
	return &Source{
		Path:      path,
		Size:      st.Size(),
		BlockSize: bs,
		Blocks:    count,
	}, nil
}

// blockGeometry derives the read-back block size and count for a source of
// the given byte size: 512-byte blocks when evenly divisible, else one block
// per byte.
func blockGeometry(size int64) (blockSize, blocks int64) {
	if size > 0 && size%512 == 0 {
		return 512, size / 512
	}
	return 1, size
}

// Digest returns the hex MD5 digest of the whole source file. The digest is
// computed at most once per process, before any copy job is spawned, and is
// read-only afterwards so concurrent verification needs no locking.
func (s *Source) Digest(showProgress bool) (string, error) {
	if s.IsDir {
		return "", fmt.Errorf("checksums apply to image sources only, %s is a directory", s.Path)
	}

	s.digestOnce.Do(func() {
		s.digest, s.digestErr = digestFile(s.Path, s.Size, showProgress)
	})
	return s.digest, s.digestErr
}

// VerifyDevice reads back exactly the source byte range from the device at
// path and reports whether its digest matches the source digest.
func (s *Source) VerifyDevice(path string, showProgress bool) (bool, error) {
	want, err := s.Digest(showProgress)
	if err != nil {
		return false, err
	}

	got, err := digestFile(path, s.BlockSize*s.Blocks, showProgress)
	if err != nil {
		return false, fmt.Errorf("failed to read back %s: %w", path, err)
	}
	return got == want, nil
}

func digestFile(path string, length int64, showProgress bool) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var r io.Reader = f
	var bar *pb.ProgressBar
	if showProgress {
		bar = pb.New64(length)
		bar.SetUnits(pb.U_BYTES)
		bar.Start()
		r = bar.NewProxyReader(f)
	}

	h := md5.New()
	_, err = io.CopyN(h, r, length)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return "", fmt.Errorf("short read from %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
