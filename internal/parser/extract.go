package parser

import (
	"strings"

	"github.com/IshaanNene/boxharvest/internal/types"
)

// PageSize is the number of listings on one results page.
const PageSize = 50

// Extractor turns matched elements into one column of normalized text.
//
// Element i lands in bucket i mod BucketSize. A page never holds more than
// BucketSize listings, so a bucket receiving a second value means the rule
// over-matched; that is rejected unless AllowOverflow is set, in which case
// the bucket's values are joined with Separator.
type Extractor struct {
	BucketSize    int
	AllowOverflow bool
	Separator     string
}

// DefaultExtractor rejects overflow.
func DefaultExtractor() Extractor {
	return Extractor{BucketSize: PageSize, Separator: " | "}
}

// Extract returns one value per bucket ordered by bucket index.
func (x Extractor) Extract(field string, elements []Element) ([]string, error) {
	size := x.BucketSize
	if size <= 0 {
		size = PageSize
	}
	if len(elements) > size && !x.AllowOverflow {
		return nil, &types.BucketOverflowError{Field: field, Elements: len(elements), Buckets: size}
	}

	buckets := make([][]string, min(len(elements), size))
	for i, e := range elements {
		k := i % size
		buckets[k] = append(buckets[k], NormalizeSpace(e.Text()))
	}

	out := make([]string, len(buckets))
	for i, b := range buckets {
		out[i] = strings.Join(b, x.Separator)
	}
	return out, nil
}

// NormalizeSpace collapses whitespace runs to one space and trims the ends.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
