//go:build !unix

package ad2cp

import "errors"

// MapFile is not available on this platform; callers fall back to OpenFile.
func MapFile(path string) (Blob, Fingerprint, error) {
	return nil, Fingerprint{}, errors.New("ad2cp: mmap unsupported on this platform")
}
