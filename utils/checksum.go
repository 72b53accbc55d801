package utils

import (
	"crypto/md5" // #nosec G501 -- Debian metadata declares MD5 sums
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"os"
)

// ChecksumInfo represents size and checksums for a single file
type ChecksumInfo struct {
	Size   int64
	MD5    string
	SHA1   string
	SHA256 string
}

// ChecksumsForReader generates size, MD5, SHA1 & SHA256 checksums for the
// full contents of r
func ChecksumsForReader(r io.Reader) (*ChecksumInfo, error) {
	hashes := []hash.Hash{md5.New(), sha1.New(), sha256.New()}

	writers := make([]io.Writer, len(hashes))
	for i, h := range hashes {
		writers[i] = h
	}

	n, err := io.Copy(io.MultiWriter(writers...), r)
	if err != nil {
		return nil, err
	}

	return &ChecksumInfo{
		Size:   n,
		MD5:    fmt.Sprintf("%x", hashes[0].Sum(nil)),
		SHA1:   fmt.Sprintf("%x", hashes[1].Sum(nil)),
		SHA256: fmt.Sprintf("%x", hashes[2].Sum(nil)),
	}, nil
}

// ChecksumsForFile generates size, MD5, SHA1 & SHA256 checksums for given file
func ChecksumsForFile(path string) (*ChecksumInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	return ChecksumsForReader(file)
}

// SHA256ForBytes returns the hex SHA256 digest of buf
func SHA256ForBytes(buf []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(buf))
}
