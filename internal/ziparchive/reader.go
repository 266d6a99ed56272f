// Package ziparchive reads and writes zip archives, including ZipCrypto and
// AES encrypted members.
package ziparchive

import (
	"compress/flate"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/newthinker/s3zip/internal/core"
	"github.com/yeka/zip"
)

// Member describes one entry of an archive.
type Member struct {
	Index     int
	Name      string
	Dir       bool
	Encrypted bool
	Size      uint64
}

// Reader gives ordered, random access to the members of a zip file on disk.
type Reader struct {
	rc      *zip.ReadCloser
	members []Member
}

// Open opens the archive at path. Unreadable or corrupt archives return
// core.ErrInvalidArchive.
func Open(path string) (*Reader, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidArchive, err)
	}

	members := make([]Member, len(rc.File))
	for i, f := range rc.File {
		members[i] = Member{
			Index:     i,
			Name:      f.Name,
			Dir:       strings.HasSuffix(f.Name, "/"),
			Encrypted: f.IsEncrypted(),
			Size:      f.UncompressedSize64,
		}
	}

	return &Reader{rc: rc, members: members}, nil
}

// Members returns the entries in central directory order.
func (r *Reader) Members() []Member {
	return r.members
}

// Encrypted reports whether any file member is encrypted.
func (r *Reader) Encrypted() bool {
	for _, m := range r.members {
		if m.Encrypted && !m.Dir {
			return true
		}
	}
	return false
}

// VerifyPassphrase decrypts the first encrypted member and discards it.
// ZipCrypto has no password check value, so the member is read to the end to
// let the CRC reject a wrong key.
func (r *Reader) VerifyPassphrase(passphrase string) error {
	for _, m := range r.members {
		if !m.Encrypted || m.Dir {
			continue
		}
		if passphrase == "" {
			return core.WithMessage(core.ErrBadPassphrase,
				"zip file is encrypted and no password was supplied", nil)
		}
		_, err := r.extract(m, passphrase, io.Discard)
		if err == nil {
			return nil
		}
		if isPassphraseError(err) {
			return core.WrapError(core.ErrBadPassphrase, err)
		}
		return core.WrapError(core.ErrInvalidArchive, err)
	}
	return nil
}

// ExtractTo decompresses member m into w, decrypting with passphrase when the
// member is encrypted.
func (r *Reader) ExtractTo(m Member, passphrase string, w io.Writer) (int64, error) {
	if m.Index < 0 || m.Index >= len(r.members) {
		return 0, core.WrapError(core.ErrMemberFailed, fmt.Errorf("member index %d out of range", m.Index))
	}
	if m.Dir {
		return 0, core.WrapError(core.ErrMemberFailed, fmt.Errorf("%s is a directory", m.Name))
	}
	n, err := r.extract(m, passphrase, w)
	if err != nil {
		return n, core.WrapError(core.ErrMemberFailed, fmt.Errorf("%s: %w", m.Name, err))
	}
	return n, nil
}

func (r *Reader) extract(m Member, passphrase string, w io.Writer) (int64, error) {
	f := r.rc.File[m.Index]
	if f.IsEncrypted() {
		f.SetPassword(passphrase)
	}

	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	return io.Copy(w, rc)
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.rc.Close()
}

func isPassphraseError(err error) bool {
	var corrupt flate.CorruptInputError
	return errors.Is(err, zip.ErrPassword) ||
		errors.Is(err, zip.ErrAuthentication) ||
		errors.Is(err, zip.ErrDecryption) ||
		errors.Is(err, zip.ErrChecksum) ||
		errors.As(err, &corrupt)
}
