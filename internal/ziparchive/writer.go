package ziparchive

import (
	"io"
	"strings"

	"github.com/yeka/zip"
)

// Writer streams members into a deflate compressed zip archive. A non-empty
// passphrase encrypts every file member with AES-256.
type Writer struct {
	zw         *zip.Writer
	passphrase string
	files      int
}

func NewWriter(w io.Writer, passphrase string) *Writer {
	return &Writer{zw: zip.NewWriter(w), passphrase: passphrase}
}

// Add writes r as a member called name and returns the bytes written.
func (w *Writer) Add(name string, r io.Reader) (int64, error) {
	var (
		dst io.Writer
		err error
	)
	if w.passphrase != "" {
		dst, err = w.zw.Encrypt(name, w.passphrase, zip.AES256Encryption)
	} else {
		dst, err = w.zw.Create(name)
	}
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(dst, r)
	if err != nil {
		return n, err
	}
	w.files++
	return n, nil
}

// AddDir writes a directory entry. The name always ends in a slash.
func (w *Writer) AddDir(name string) error {
	if !strings.HasSuffix(name, "/") {
		name += "/"
	}
	_, err := w.zw.Create(name)
	return err
}

// Files returns the number of file members written so far.
func (w *Writer) Files() int {
	return w.files
}

// Close writes the central directory. It does not close the underlying writer.
func (w *Writer) Close() error {
	return w.zw.Close()
}
