package funding

import (
	"fmt"
	"regexp"

	"gorm.io/datatypes"
)

const (
	maxMetadataKeys     = 32
	maxMetadataValueLen = 256
)

var reMetadataKey = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// NewMetadata validates caller supplied tags. Only string values are
// accepted so the column stays a flat, queryable map.
func NewMetadata(in map[string]string) (datatypes.JSONMap, error) {
	if len(in) == 0 {
		return nil, nil
	}
	if len(in) > maxMetadataKeys {
		return nil, invalid("metadata", fmt.Sprintf("at most %d keys allowed", maxMetadataKeys))
	}
	out := make(datatypes.JSONMap, len(in))
	for k, v := range in {
		if !reMetadataKey.MatchString(k) {
			return nil, invalid("metadata."+k, "key must match [a-z][a-z0-9_]*, max 64 chars")
		}
		if len(v) > maxMetadataValueLen {
			return nil, invalid("metadata."+k, fmt.Sprintf("value longer than %d chars", maxMetadataValueLen))
		}
		out[k] = v
	}
	return out, nil
}
