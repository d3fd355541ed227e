package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"livereport-service/config"
	"livereport-service/pkg/breaker"
	"livereport-service/pkg/common"
	"livereport-service/services"
)

type Server struct {
	config     *config.Config
	db         *sql.DB
	wsHub      *Hub
	supervisor *services.Supervisor
	store      *services.SessionStore
	stats      *services.StatsTracker
	health     *services.HealthChecker
	breakers   []*breaker.Breaker
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

func NewServer(cfg *config.Config, db *sql.DB, hub *Hub, supervisor *services.Supervisor, store *services.SessionStore, stats *services.StatsTracker, health *services.HealthChecker, breakers []*breaker.Breaker) *Server {
	return &Server{
		config:     cfg,
		db:         db,
		wsHub:      hub,
		supervisor: supervisor,
		store:      store,
		stats:      stats,
		health:     health,
		breakers:   breakers,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源(生产环境需要限制)
			},
		},
	}
}

func (s *Server) Start() error {
	router := mux.NewRouter()

	// API路由
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/monitor", s.handleStartMonitor).Methods("POST")
	api.HandleFunc("/monitor/{match_id}", s.handleStopMonitor).Methods("DELETE")
	api.HandleFunc("/sessions", s.handleGetSessions).Methods("GET")
	api.HandleFunc("/sessions/{match_id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/stats", s.handleGetStats).Methods("GET")
	api.HandleFunc("/breakers", s.handleGetBreakers).Methods("GET")

	// WebSocket路由
	router.HandleFunc("/ws", s.handleWebSocket)

	// CORS配置
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	handler := c.Handler(router)

	s.httpServer = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

// handleHealth 健康检查
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	state := "ok"
	if !s.health.Healthy() {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  state,
		"time":    time.Now().Unix(),
		"details": s.health.Status(),
	})
}

// handleStartMonitor 开始监控一场比赛
func (s *Server) handleStartMonitor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MatchID     string `json:"match_id"`
		Competition string `json:"competition"`
		ChannelID   string `json:"channel_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Competition == "" {
		req.Competition = s.config.Competition
	}

	session, err := s.supervisor.StartMonitoring(req.MatchID, req.Competition, req.ChannelID)
	if err != nil {
		if errors.Is(err, common.ErrInvalidInput) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(session)
}

// handleStopMonitor 停止监控一场比赛
func (s *Server) handleStopMonitor(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["match_id"]

	if err := s.supervisor.StopMonitoring(matchID); err != nil {
		if errors.Is(err, common.ErrSessionInactive) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"match_id": matchID,
		"stopped":  true,
	})
}

// handleGetSessions 获取会话列表
func (s *Server) handleGetSessions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var (
		sessions []*services.ReportingSession
		err      error
	)
	if query.Get("active") == "true" {
		sessions, err = s.store.ListActiveSessions()
	} else {
		sessions, err = s.store.ListSessions(limit)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []*services.ReportingSession{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleGetSession 获取单场比赛的会话
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["match_id"]

	session, err := s.store.GetSession(matchID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

// handleGetStats 获取运行统计
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	snapshot := s.stats.Snapshot()
	snapshot["monitored_matches"] = s.supervisor.ActiveMatches()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}

// handleGetBreakers 获取熔断器状态
func (s *Server) handleGetBreakers(w http.ResponseWriter, r *http.Request) {
	statuses := make([]map[string]interface{}, 0, len(s.breakers))
	for _, b := range s.breakers {
		statuses = append(statuses, b.Status())
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"breakers": statuses,
	})
}

// handleWebSocket 升级WebSocket连接
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	s.wsHub.register <- client

	go client.writePump()
	go client.readPump()
}
