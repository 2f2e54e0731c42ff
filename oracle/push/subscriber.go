// Package push implements the streaming half of the worker's queue
// update source: a websocket client subscribed to the validator's
// accountSubscribe notifications for each oracle queue, with automatic
// reconnection on drop.
package push

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"

	"github.com/ephemeral-labs/vrf-oracle/node"
)

// Subscriber maintains one websocket connection to wsURL and multiplexes
// accountSubscribe notifications for every queue address registered via
// Watch before Run starts.
type Subscriber struct {
	wsURL string

	mu      sync.Mutex
	watched [][32]byte
}

// NewSubscriber returns a Subscriber that will dial wsURL once Run is
// called.
func NewSubscriber(wsURL string) *Subscriber {
	return &Subscriber{wsURL: wsURL}
}

// Watch registers a queue address to subscribe to. Must be called
// before Run.
func (s *Subscriber) Watch(queueAddr [32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watched = append(s.watched, queueAddr)
}

type subscribeRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type accountNotification struct {
	Params struct {
		Subscription int `json:"subscription"`
		Result       struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Data []string `json:"data"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// Run dials wsURL and forwards account notifications as QueueUpdates
// until ctx is cancelled, reconnecting with a fixed backoff on any
// connection error — the same reconnect-loop shape the node's earlier
// event listener used for its log subscription.
func (s *Subscriber) Run(ctx context.Context, updates chan<- node.QueueUpdate) {
	for {
		if err := s.connectAndListen(ctx, updates); err != nil {
			log.Error().Err(err).Msg("push subscriber disconnected, reconnecting in 5s")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (s *Subscriber) connectAndListen(ctx context.Context, updates chan<- node.QueueUpdate) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	s.mu.Lock()
	watched := append([][32]byte(nil), s.watched...)
	s.mu.Unlock()

	subByAddr := make(map[int][32]byte, len(watched))
	for i, addr := range watched {
		req := subscribeRequest{
			JSONRPC: "2.0",
			ID:      i + 1,
			Method:  "accountSubscribe",
			Params:  []interface{}{base58.Encode(addr[:]), map[string]string{"encoding": "base64"}},
		}
		if err := conn.WriteJSON(req); err != nil {
			return fmt.Errorf("subscribe %x: %w", addr, err)
		}
		subByAddr[i+1] = addr
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var confirm struct {
			ID     int `json:"id"`
			Result int `json:"result"`
		}
		if err := json.Unmarshal(raw, &confirm); err == nil && confirm.ID != 0 {
			if addr, ok := subByAddr[confirm.ID]; ok {
				delete(subByAddr, confirm.ID)
				subByAddr[confirm.Result] = addr
			}
			continue
		}

		var notif accountNotification
		if err := json.Unmarshal(raw, &notif); err != nil {
			continue
		}
		addr, ok := subByAddr[notif.Params.Subscription]
		if !ok || len(notif.Params.Result.Value.Data) == 0 {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(notif.Params.Result.Value.Data[0])
		if err != nil {
			continue
		}

		select {
		case updates <- node.QueueUpdate{QueueAddr: addr, Data: data, Slot: notif.Params.Result.Context.Slot}:
		case <-ctx.Done():
			return nil
		}
	}
}
