package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestHost(t *testing.T) (*RoomManager, *Room, string) {
	t.Helper()

	cfg := &Config{log: zerolog.Nop()}
	rm := newRoomManager(0, clockwork.NewRealClock(), zerolog.Nop())
	room := rm.create(Settings{Rounds: 1, AnswerTime: 30, VoteTime: 20}, time.Second, stubSource{"p1"}, nil)

	mux := httprouter.New()
	mux.GET("/room/:code/ws", serveRoomWS(cfg, rm))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(room.close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/room/" + room.code + "/ws"
	return rm, room, wsURL
}

func TestJoinOverWebsocket(t *testing.T) {
	_, room, wsURL := startTestHost(t)

	rp := &recordingPresenter{}
	gc := newGameClient("alice", wsURL, clockwork.NewRealClock(), zerolog.Nop(), rp, rp)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- gc.Run(ctx) }()

	// The join lands on the room loop and the lobby broadcast comes back.
	require.Eventually(t, func() bool {
		rp.mu.Lock()
		defer rp.mu.Unlock()
		return len(rp.calls) > 0 && rp.calls[0] == "lobby"
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, gc.IsModerator())

	// A closure while still in the lobby is an ordinary departure, not a
	// fault: Run returns cleanly instead of reconnecting.
	room.close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not exit after the room closed")
	}
}

func TestServeRoomWSUnknownCode(t *testing.T) {
	_, _, wsURL := startTestHost(t)

	bad := strings.Replace(wsURL, "/room/", "/room/XXX", 1)
	httpURL := "http" + strings.TrimPrefix(bad, "ws")

	resp, err := http.Get(httpURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
