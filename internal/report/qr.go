package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// FingerprintQR renders "sha256:<hex>" of a recording as a PNG.
func FingerprintQR(sum string, size int) ([]byte, error) {
	sum = strings.ToLower(strings.TrimSpace(sum))
	if sum == "" {
		return nil, fmt.Errorf("sha256 is empty")
	}
	if raw, err := hex.DecodeString(sum); err != nil || len(raw) != sha256.Size {
		return nil, fmt.Errorf("invalid sha256 %q", sum)
	}
	if size <= 0 {
		size = 128
	}
	q, err := qrcode.New("sha256:"+sum, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	return q.PNG(size)
}
