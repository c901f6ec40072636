package core

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// File is a local file or an uploaded form file that PutFile can store.
type File struct {
	name string
	size int64
	open func() (io.ReadCloser, error)
}

// NewFile refers to a file on the local disk.
func NewFile(path string) *File {
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	return &File{
		name: filepath.Base(path),
		size: size,
		open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// NewUploadedFile refers to a file received in a multipart form.
func NewUploadedFile(header *multipart.FileHeader) *File {
	return &File{
		name: filepath.Base(header.Filename),
		size: header.Size,
		open: func() (io.ReadCloser, error) { return header.Open() },
	}
}

// Name returns the original base name.
func (f *File) Name() string { return f.name }

// Size returns the size in bytes, 0 when unknown.
func (f *File) Size() int64 { return f.size }

// Extension returns the lower-cased extension without the dot.
func (f *File) Extension() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(f.name), "."))
}

// Open opens the file for reading; the caller closes it.
func (f *File) Open() (io.ReadCloser, error) { return f.open() }

// HashName generates a storage name. RuleDate (the default) gives
// YYYYMMDD/<md5 of a random uuid>; RuleMD5 and RuleSHA1 hash the content
// and split the digest as <first two>/<rest>. The extension is kept.
func (f *File) HashName(rule NameRule) (string, error) {
	var name string
	switch rule {
	case RuleMD5, RuleSHA1:
		digest, err := f.digest(rule)
		if err != nil {
			return "", err
		}
		name = digest[:2] + "/" + digest[2:]
	default:
		sum := md5.Sum([]byte(uuid.NewString()))
		name = time.Now().Format("20060102") + "/" + hex.EncodeToString(sum[:])
	}

	if ext := f.Extension(); ext != "" {
		name += "." + ext
	}
	return name, nil
}

func (f *File) digest(rule NameRule) (string, error) {
	var h hash.Hash = md5.New()
	if rule == RuleSHA1 {
		h = sha1.New()
	}

	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", f.name, err)
	}
	defer rc.Close()

	if _, err := io.Copy(h, rc); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", f.name, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
