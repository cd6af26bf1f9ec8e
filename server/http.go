package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kasperdoggames/crypto-jumper/server/auth"
	"github.com/kasperdoggames/crypto-jumper/server/srv"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  2048,
	WriteBufferSize: 2048,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsHandler binds the token's wallet to the connection. No token gives an
// anonymous connection; a bad one is refused before the upgrade.
func wsHandler(h *srv.Hub, a *auth.Auth, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var wallet string
		if tok := auth.TokenFromRequest(r); tok != "" {
			wt, err := a.ParseToken(tok)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			wallet = wt
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("upgrade")
			return
		}
		h.HandleWS(conn, wallet)
	}
}

type meResp struct {
	Address string `json:"address"`
	Wins    int    `json:"wins"`
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func routes(h *srv.Hub, a *auth.Auth, reg *prometheus.Registry, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(h, a, log))
	mux.HandleFunc("GET /auth/nonce", a.HandleNonce)
	mux.HandleFunc("POST /auth/login", a.HandleLogin)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /leaderboard", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, h.Leaderboard().Snapshot())
	})
	mux.Handle("GET /me", a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet := auth.WalletFromContext(r.Context())
		writeJSON(w, meResp{Address: wallet, Wins: h.Leaderboard().Wins(wallet)})
	})))
	return mux
}
