package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasperdoggames/crypto-jumper/server/auth"
	"github.com/kasperdoggames/crypto-jumper/server/config"
	"github.com/kasperdoggames/crypto-jumper/server/metrics"
	"github.com/kasperdoggames/crypto-jumper/server/srv"
	"github.com/kasperdoggames/crypto-jumper/shared/protocol"
)

func newTestServer(t *testing.T) (*httptest.Server, *srv.Hub, *auth.Auth) {
	t.Helper()
	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))
	hub := srv.NewHub(srv.Options{Levels: []string{"lava"}}, zerolog.Nop())
	a := auth.NewAuth(nil, zerolog.Nop())
	ts := httptest.NewServer(routes(hub, a, reg, zerolog.Nop()))
	t.Cleanup(ts.Close)
	return ts, hub, a
}

func login(t *testing.T, a *auth.Auth) (token, address string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)
	sig, err := crypto.Sign(auth.TextHash(auth.LoginMessage(a.Nonce(addr))), key)
	require.NoError(t, err)
	token, err = a.Login(addr, sig)
	require.NoError(t, err)
	return token, addr.Hex()
}

func wsURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
}

func TestWSRejectsBadToken(t *testing.T) {
	ts, _, _ := newTestServer(t)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "?token=garbage"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWSRequestSlot(t *testing.T) {
	ts, _, a := newTestServer(t)
	token, address := login(t, a)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "?token="+token), nil)
	require.NoError(t, err)
	defer conn.Close()

	msg, err := protocol.Encode(protocol.TypeRequestSlot, "", protocol.RequestSlot{Level: "lava"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env protocol.MsgEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	require.Equal(t, protocol.TypeGameData, env.Type)

	var gd protocol.GameData
	require.NoError(t, json.Unmarshal(env.Data, &gd))
	assert.Equal(t, "lava", gd.RoomSet)
	assert.Equal(t, protocol.RoomChannel("lava", gd.GameID), env.Channel)
	require.Len(t, gd.Players, 1)
	assert.Equal(t, address, gd.Players[0].Account)
}

func TestLeaderboardAndMe(t *testing.T) {
	ts, hub, a := newTestServer(t)
	token, address := login(t, a)
	hub.Leaderboard().Record(address, "0x01")

	resp, err := http.Get(ts.URL + "/leaderboard")
	require.NoError(t, err)
	defer resp.Body.Close()
	var lb protocol.Leaderboard
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lb))
	require.Len(t, lb.Items, 1)
	assert.Equal(t, srv.DisplayWallet(address), lb.Items[0].Address)
	assert.Equal(t, 1, lb.Items[0].Wins)

	resp, err = http.Get(ts.URL + "/me?token=" + token)
	require.NoError(t, err)
	defer resp.Body.Close()
	var me meResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
	assert.Equal(t, meResp{Address: address, Wins: 1}, me)

	resp, err = http.Get(ts.URL + "/me")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOperationalEndpoints(t *testing.T) {
	ts, _, _ := newTestServer(t)
	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := http.Post(ts.URL+"/auth/login", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(config.Config{LogLevel: "warn"}, &buf)
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	log = newLogger(config.Config{LogLevel: "bogus"}, &buf)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}
