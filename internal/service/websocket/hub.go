// Package websocket fans analysis outcomes out to live feed viewers.
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"trayaudit/internal/dto"
	"trayaudit/internal/logger"

	"github.com/gorilla/websocket"
)

const broadcastBuffer = 64

// Client is the part of a websocket connection the hub writes to.
type Client interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type HubService struct {
	clients    map[Client]bool
	broadcast  chan []byte
	register   chan Client
	unregister chan Client
	mutex      sync.RWMutex
	logger     *logger.Logger
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[Client]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan Client),
		unregister: make(chan Client),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every remaining client.
func (h *HubService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Feed viewer connected. Total: %d", total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Feed viewer disconnected. Total: %d", total)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Error("Error sending feed message: %v", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

func (h *HubService) Register(client Client) {
	h.register <- client
}

func (h *HubService) Unregister(client Client) {
	h.unregister <- client
}

// Broadcast queues msg for every viewer. When the queue is full the message
// is dropped so analysis requests never wait on slow viewers.
func (h *HubService) Broadcast(msg dto.FeedMessage) {
	if msg.Results == nil {
		msg.Results = []dto.DetectionResult{}
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode feed message: %v", err)
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warning("Feed queue full, dropping update for %s", msg.Filename)
	}
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
