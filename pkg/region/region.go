// Package region implements byte-window arithmetic and HTTP Range/
// Content-Range handling for ranged retrieval.
package region

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/weavegate/gateway/pkg/gatewayerr"
)

// Region is a half-open byte window [Offset, Offset+Size) within a payload.
// All arithmetic is 64-bit to cover payloads larger than 4 GiB.
type Region struct {
	Offset uint64
	Size   uint64
}

// End returns the exclusive end offset.
func (r Region) End() uint64 { return r.Offset + r.Size }

// Full returns the Region covering an entire payload of the given size.
func Full(size uint64) Region { return Region{Offset: 0, Size: size} }

// ContentRangeHeader formats the inclusive wire form of an HTTP
// Content-Range value: "bytes start-end/total".
func (r Region) ContentRangeHeader(total uint64) string {
	if r.Size == 0 {
		return fmt.Sprintf("bytes */%d", total)
	}
	return fmt.Sprintf("bytes %d-%d/%d", r.Offset, r.End()-1, total)
}

// RequestHeader formats r as an outbound "Range: bytes=start-end" header
// value for use when this gateway itself acts as a client against an
// upstream.
func (r Region) RequestHeader() string {
	return fmt.Sprintf("bytes=%d-%d", r.Offset, r.End()-1)
}

// Range is a single byte range as requested by a client, in the inclusive
// wire representation (either bound may be unset — see ParseRangeHeader).
type Range struct {
	Start    *uint64
	End      *uint64
	Suffix   *uint64 // set for "bytes=-N" (last N bytes)
}

// Resolve converts a parsed Range against a known total size into a Region.
// Returns a classified Unsatisfiable error if the range falls entirely
// outside [0, total).
func (rg Range) Resolve(total uint64) (Region, error) {
	if rg.Suffix != nil {
		n := *rg.Suffix
		if n == 0 {
			return Region{}, gatewayerr.New(gatewayerr.KindUnsatisfiable, "suffix range length is zero")
		}
		if n > total {
			n = total
		}
		return Region{Offset: total - n, Size: n}, nil
	}

	start := uint64(0)
	if rg.Start != nil {
		start = *rg.Start
	}
	if start >= total && total > 0 {
		return Region{}, gatewayerr.New(gatewayerr.KindUnsatisfiable, "range start beyond payload size")
	}

	end := total
	if rg.End != nil {
		e := *rg.End + 1
		if e < end {
			end = e
		}
	}
	if end <= start {
		return Region{}, gatewayerr.New(gatewayerr.KindUnsatisfiable, "empty range")
	}
	return Region{Offset: start, Size: end - start}, nil
}

// ParseRangeHeader parses an RFC 7233 "Range: bytes=..." header value into
// one or more requested ranges. Malformed headers return ok=false, which
// callers must treat as "serve the full response".
func ParseRangeHeader(header string) (ranges []Range, ok bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return nil, false
	}
	spec := strings.TrimPrefix(header, prefix)
	parts := strings.Split(spec, ",")
	ranges = make([]Range, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, false
		}
		r, parsed := parseOneRange(p)
		if !parsed {
			return nil, false
		}
		ranges = append(ranges, r)
	}
	if len(ranges) == 0 {
		return nil, false
	}
	return ranges, true
}

func parseOneRange(spec string) (Range, bool) {
	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return Range{}, false
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	if startStr == "" {
		// suffix form: "-500"
		n, err := strconv.ParseUint(endStr, 10, 64)
		if err != nil {
			return Range{}, false
		}
		return Range{Suffix: &n}, true
	}

	start, err := strconv.ParseUint(startStr, 10, 64)
	if err != nil {
		return Range{}, false
	}
	if endStr == "" {
		return Range{Start: &start}, true
	}
	end, err := strconv.ParseUint(endStr, 10, 64)
	if err != nil || end < start {
		return Range{}, false
	}
	return Range{Start: &start, End: &end}, true
}
