package models

// CacheStats reports byte-budgeted cache metrics.
type CacheStats struct {
	Capacity  int64 `json:"capacity"`
	Size      int64 `json:"size"`
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// MemoStats reports commentary memo store metrics.
type MemoStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}
