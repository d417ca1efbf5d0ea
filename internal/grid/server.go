package grid

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The gateway serves trusted desktop shells on the same host.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Server upgrades grid connections and attaches them to the hub.
type Server struct {
	hub *Hub
}

// NewServer creates the websocket endpoint handler for a hub.
func NewServer(hub *Hub) *Server {
	return &Server{hub: hub}
}

// ServeHTTP implements the /ws endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logs.Errorf("grid: upgrade, err: %+v", err)
		return
	}
	client := newClient(s.hub, conn)
	s.hub.register(client)
	go client.writePump()
	go client.readPump()
}
