package protocol

const (
	// Room sizing
	MaxRoomPlayers = 10

	// Timekeeper clock
	CountdownTickMs    = 1000
	LeaderboardTopSize = 5

	// Phase names as sent by clients and in GameData.GameState
	StateWaiting = "waiting"
	StateRunning = "running"
	StateEnd     = "end"
)
