package protocol

type LeaderboardEntry struct {
	Address string `json:"address"` // display form, e.g. 0x12...cdef
	Wins    int    `json:"wins"`
	Image   string `json:"image,omitempty"`
}

type Leaderboard struct {
	Items       []LeaderboardEntry `json:"items"`
	GeneratedAt int64              `json:"generated_at"` // Unix ms (optional, for cache/debug)
}
