package scan

import (
	"encoding/hex"
	"errors"

	"rfidscan/reader"
)

var (
	// ErrNotNTAG203 is returned when a tag is present but page 0 cannot be read.
	ErrNotNTAG203 = errors.New("could not read uid, probably not an NTAG203")

	// ErrPagesUnsupported is returned for the ntag203 path when the reader
	// cannot fetch raw pages.
	ErrPagesUnsupported = errors.New("reader does not support raw page reads")
)

// readNTAG203 makes one attempt at reading the uid of an NTAG203. Page 0
// holds uid0-2, check byte 0, uid3-6; the check byte is skipped.
func readNTAG203(pages reader.PageReader) (reader.Tag, bool, error) {
	data, ok, err := pages.TryReadPage(0)
	if err != nil || !ok {
		return reader.Tag{}, false, err
	}

	id, err := ntag203UID(data)
	if err != nil {
		return reader.Tag{}, false, err
	}
	return reader.Tag{ID: id}, true, nil
}

func ntag203UID(page []byte) (string, error) {
	if len(page) < 8 {
		return "", ErrNotNTAG203
	}

	uid := make([]byte, 0, 7)
	uid = append(uid, page[0:3]...)
	uid = append(uid, page[4:8]...)
	return hex.EncodeToString(uid), nil
}
