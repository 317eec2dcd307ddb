package server

import (
	"encoding/json"
	"net/http"
	_ "net/http/pprof" // Profiling
	"strconv"

	"pixsim-server/internal/engine"
	"pixsim-server/internal/version"
	"pixsim-server/pkg/logger"
)

type Server struct {
	Engine *engine.GameService
	Port   string
}

func New(engine *engine.GameService, port string) *Server {
	return &Server{
		Engine: engine,
		Port:   port,
	}
}

// Run запускает HTTP сервер
func (s *Server) Run() error {
	mux := http.DefaultServeMux

	mux.HandleFunc("/ws", enableCORS(s.handleWS))
	mux.HandleFunc("/health", enableCORS(s.handleHealth))
	mux.HandleFunc("/version", enableCORS(s.handleVersion))

	// REST для внешних тулз: догоняющее чтение журнала и схемы миров.
	mux.HandleFunc("GET /sessions/{id}/events", enableCORS(s.handleEvents))
	mux.HandleFunc("GET /worlds/{id}/schema/relationships", enableCORS(s.handleRelationshipSchema))
	mux.HandleFunc("GET /worlds/{id}/schema/intimacy", enableCORS(s.handleIntimacySchema))

	logger.Log.Infof("🌱 PixSim Server running on :%s", s.Port)
	return http.ListenAndServe(":"+s.Port, mux)
}

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		next(w, r)
	}
}

// handleWS обрабатывает подключение по WebSocket
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("Upgrade error:", err)
		return
	}

	client := NewClient(s.Engine, conn)

	// Запускаем пампы
	go client.writePump()
	go client.readPump()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(version.Info())
}

// handleEvents - журнал событий сессии после ?after=N.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	after, _ := strconv.ParseUint(r.URL.Query().Get("after"), 10, 64)
	events, err := s.Engine.EventsSince(r.PathValue("id"), after)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

func (s *Server) handleRelationshipSchema(w http.ResponseWriter, r *http.Request) {
	ver, _ := strconv.Atoi(r.URL.Query().Get("version"))
	schema, err := s.Engine.GetRelationshipSchema(r.PathValue("id"), ver)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schema)
}

func (s *Server) handleIntimacySchema(w http.ResponseWriter, r *http.Request) {
	ver, _ := strconv.Atoi(r.URL.Query().Get("version"))
	schema, err := s.Engine.GetIntimacySchema(r.PathValue("id"), ver)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schema)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{
		"code":  errorCode(err),
		"error": err.Error(),
	})
}
