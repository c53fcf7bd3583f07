package region

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/weavegate/gateway/pkg/constants"
)

// NewBoundary generates a multipart/byteranges boundary: a 50-character
// string beginning with at least 26 dashes followed by hex digits.
func NewBoundary() (string, error) {
	dashes := strings.Repeat("-", constants.MultipartBoundaryDashes)
	hexLen := constants.MultipartBoundaryLength - len(dashes)
	raw := make([]byte, (hexLen+1)/2)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate multipart boundary: %w", err)
	}
	hexDigits := hex.EncodeToString(raw)[:hexLen]
	return dashes + hexDigits, nil
}

// Part describes one range within a multipart/byteranges response.
type Part struct {
	Region      Region
	TotalSize   uint64
	ContentType string
}

// WritePartHeader writes one part's header block (boundary delimiter,
// Content-Type, Content-Range, blank line) per RFC 7233 §4.1.
func WritePartHeader(w io.Writer, boundary string, part Part) error {
	_, err := fmt.Fprintf(w, "--%s\r\nContent-Type: %s\r\nContent-Range: %s\r\n\r\n",
		boundary, part.ContentType, part.Region.ContentRangeHeader(part.TotalSize))
	return err
}

// WriteFinalBoundary writes the terminating boundary of a multipart body.
func WriteFinalBoundary(w io.Writer, boundary string) error {
	_, err := fmt.Fprintf(w, "--%s--\r\n", boundary)
	return err
}
