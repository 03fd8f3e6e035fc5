package digestcodec

import (
	"sort"
)

// WriteSortedNonZeroU64Map emits a deterministic key-sorted map encoding,
// skipping zero values to keep digest payload stable and compact.
func WriteSortedNonZeroU64Map(w Writer, tmp *[8]byte, m map[string]uint64) {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		WriteBytes(w, tmp, []byte(k))
		WriteU64(w, tmp, m[k])
	}
}
