package web

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"livereport-service/pkg/models"
)

// Client WebSocket客户端。过滤器由readPump写入、Hub循环读取，
// 用filterMu保护。
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	filterMu sync.RWMutex
	types    map[string]bool // 更新类别过滤器
	matchIDs map[string]bool // 比赛ID过滤器
}

// Hub WebSocket Hub，把比赛更新广播给所有已连接的客户端
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *models.MatchUpdate
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub 创建新的Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *models.MatchUpdate, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run 运行Hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("Client registered. Total clients: %d", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("Client unregistered. Total clients: %d", len(h.clients))

		case update := <-h.broadcast:
			data := marshalUpdate(update)
			h.mu.Lock()
			for client := range h.clients {
				if !client.shouldReceive(update) {
					continue
				}
				select {
				case client.send <- data:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Pump 把Broker订阅通道里的更新灌进Hub，通道关闭后返回
func (h *Hub) Pump(updates <-chan *models.MatchUpdate) {
	for update := range updates {
		h.Broadcast(update)
	}
}

// Broadcast 广播一条比赛更新
func (h *Hub) Broadcast(update *models.MatchUpdate) {
	select {
	case h.broadcast <- update:
	default:
		log.Printf("Broadcast channel full. Update for match %s dropped.", update.MatchID)
	}
}

// marshalUpdate 序列化更新
func marshalUpdate(update *models.MatchUpdate) []byte {
	data, err := json.Marshal(update)
	if err != nil {
		log.Printf("Failed to marshal update: %v", err)
		return []byte("{}")
	}
	return data
}

// shouldReceive 检查客户端是否应该接收这条更新
func (c *Client) shouldReceive(update *models.MatchUpdate) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()

	// 没有设置过滤器时接收所有更新
	if len(c.types) == 0 && len(c.matchIDs) == 0 {
		return true
	}

	if len(c.types) > 0 {
		if _, ok := c.types[string(update.Type)]; !ok {
			return false
		}
	}

	if len(c.matchIDs) > 0 {
		if _, ok := c.matchIDs[update.MatchID]; !ok {
			return false
		}
	}

	return true
}

// readPump 读取客户端消息
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump 向客户端写入消息
func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
	}()

	for {
		message, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// handleMessage 处理客户端发送的订阅指令
func (c *Client) handleMessage(message []byte) {
	var msg struct {
		Type     string   `json:"type"`
		Types    []string `json:"update_types"`
		MatchIDs []string `json:"match_ids"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Printf("Failed to unmarshal client message: %v", err)
		return
	}

	switch msg.Type {
	case "subscribe":
		c.filterMu.Lock()
		if len(msg.Types) > 0 {
			c.types = make(map[string]bool)
			for _, t := range msg.Types {
				c.types[t] = true
			}
		}
		if len(msg.MatchIDs) > 0 {
			c.matchIDs = make(map[string]bool)
			for _, id := range msg.MatchIDs {
				c.matchIDs[id] = true
			}
		}
		c.filterMu.Unlock()
		log.Printf("Client subscribed with types: %v, matches: %v", msg.Types, msg.MatchIDs)

	case "unsubscribe":
		c.filterMu.Lock()
		c.types = make(map[string]bool)
		c.matchIDs = make(map[string]bool)
		c.filterMu.Unlock()
		log.Println("Client unsubscribed")
	}
}
