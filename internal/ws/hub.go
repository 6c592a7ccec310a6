package ws

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/bet-core-engine/internal/oddsfeed"
)

// Hub gerencia conexões WebSocket e assinaturas de odds por partida.
// Cada (conexão, partida) vira uma assinatura do feed com fila limitada:
// cliente lento perde deltas antigos e recebe Resync para refazer o
// snapshot, nunca atrasa a publicação.
type Hub struct {
	upgrader websocket.Upgrader
	feed     *oddsfeed.Feed
	log      *zap.Logger
}

// NewHub cria o hub com política customizada de origem (CORS)
func NewHub(feed *oddsfeed.Feed, log *zap.Logger, allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		feed:     feed,
		log:      log,
	}
}

// client serializa as escritas na conexão: pumps de partidas diferentes e o
// loop de controle compartilham o mesmo socket
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) send(msg ServerMsg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket.
// Permite subscribe/unsubscribe em partidas e responde a pings.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}
	subs := make(map[string]*oddsfeed.Subscription)

	defer func() {
		// cancela todas as assinaturas ao desconectar; os pumps terminam
		// quando o canal fecha
		for _, sub := range subs {
			sub.Cancel()
		}
		_ = conn.Close()
	}()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "subscribe":
			if _, ok := subs[msg.MatchID]; ok {
				continue
			}
			sub, serr := h.feed.Subscribe(msg.MatchID)
			if serr != nil {
				_ = c.send(ServerMsg{Type: "error", MatchID: msg.MatchID, Error: serr.Error()})
				continue
			}
			subs[msg.MatchID] = sub
			go pump(c, msg.MatchID, sub)
		case "unsubscribe":
			if sub, ok := subs[msg.MatchID]; ok {
				delete(subs, msg.MatchID)
				sub.Cancel()
			}
		case "ping":
			_ = c.send(ServerMsg{Type: "pong"})
		}
	}
}

// pump repassa os deltas do feed para a conexão até a assinatura fechar
func pump(c *client, matchID string, sub *oddsfeed.Subscription) {
	for d := range sub.C {
		delta := d
		if err := c.send(ServerMsg{Type: "odds", MatchID: matchID, Delta: &delta}); err != nil {
			sub.Cancel()
			return
		}
	}
}
