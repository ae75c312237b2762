package socketworker

import (
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/swarmtrack/swarmtrack/internal/dispatch"
	"github.com/swarmtrack/swarmtrack/internal/mesh"
	"github.com/swarmtrack/swarmtrack/internal/protocol"
)

func TestWSSocketWorker_EndToEndAnnounce(t *testing.T) {
	tlsCfg := generateTestTLSConfig(t)

	reqMesh := mesh.New[dispatch.RequestMessage](1, 1, 4)
	respMesh := mesh.New[dispatch.ResponseMessage](1, 1, 4)

	stop := make(chan struct{})
	defer close(stop)

	go func() {
		lane := reqMesh.Consumer(0)[0]
		for {
			select {
			case <-stop:
				return
			case env := <-lane:
				_ = respMesh.TrySendTo(0, env.ConsumerID, mesh.Envelope[dispatch.ResponseMessage]{
					ConsumerID:   env.ConsumerID,
					ConnectionID: env.ConnectionID,
					PeerAddr:     env.PeerAddr,
					Payload: dispatch.ResponseMessage{Announce: &protocol.AnnounceResponse{
						Interval: 900,
					}},
				})
			}
		}
	}()

	var ready atomic.Int32
	worker := NewWSSocketWorker(0, WSConfig{
		Address:                 "127.0.0.1:0",
		ResponseTimeout:         2 * time.Second,
		RequestWorkers:          1,
		InboxCapacity:           4,
		MaxConnectionAge:        2 * time.Minute,
		WebsocketMaxMessageSize: 64 * 1024,
	}, tlsCfg, reqMesh, respMesh, nil, nil, &ready, discardLogger())

	addrCh := make(chan string, 1)
	worker.boundAddr = addrCh
	go worker.Serve(stop)

	var addr string
	select {
	case a := <-addrCh:
		addr = a
	case <-time.After(2 * time.Second):
		t.Fatal("listener never bound")
	}

	dialer := websocket.Dialer{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	url := fmt.Sprintf("wss://%s/", addr)
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	defer conn.Close()

	msg := fmt.Sprintf(`{"action":"announce","info_hash":"%s","peer_id":"%s","port":6881}`,
		hex.EncodeToString(make([]byte, 20)), hex.EncodeToString(make([]byte, 20)))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"action":"announce"`) {
		t.Errorf("expected announce response, got %s", data)
	}
}
