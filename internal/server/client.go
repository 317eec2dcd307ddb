package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"pixsim-server/internal/domain"
	"pixsim-server/internal/engine"
	"pixsim-server/pkg/api"
	"pixsim-server/pkg/logger"

	"github.com/gorilla/websocket"
)

// Настройки WebSocket
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024

	commandTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client - посредник между WebSocket и GameService.
type Client struct {
	Game *engine.GameService
	Conn *websocket.Conn
	Send chan api.ServerResponse

	// subscribed - сессия, на события которой подписан клиент.
	subscribed string
	events     chan api.Event
}

func NewClient(game *engine.GameService, conn *websocket.Conn) *Client {
	return &Client{
		Game: game,
		Conn: conn,
		Send: make(chan api.ServerResponse, 256),
	}
}

// readPump читает команды клиента и диспатчит их в сервис.
func (c *Client) readPump() {
	defer func() {
		c.unsubscribe()
		// Send не закрываем: форвардер событий мог еще дописывать.
		// writePump завершится по ошибке записи в закрытый сокет.
		if err := c.Conn.Close(); err != nil {
			logger.Log.WithError(err).Debug("failed to close websocket connection")
		}
		logger.Log.Info("Client disconnected")
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Log.WithError(err).Warn("failed to set read deadline")
	}
	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			logger.Log.WithError(err).Warn("failed to set pong read deadline")
		}
		return nil
	})

	for {
		var cmd api.ClientCommand
		if err := c.Conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Errorf("WS Error: %v", err)
			}
			return
		}
		c.Send <- c.handle(cmd)
	}
}

// writePump отправляет данные клиенту + Ping.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.Conn.Close(); err != nil {
			logger.Log.WithError(err).Debug("failed to close websocket connection in writePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Log.WithError(err).Warn("failed to set write deadline")
			}
			if !ok {
				if err := c.Conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logger.Log.WithError(err).Debug("write close message failed")
				}
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				logger.Log.WithError(err).Debug("write json message failed")
				return
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Log.WithError(err).Warn("failed to set ping write deadline")
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Log.WithError(err).Debug("ping failed")
				return
			}
		}
	}
}

// handle исполняет одну команду и формирует ответ.
func (c *Client) handle(cmd api.ClientCommand) api.ServerResponse {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	resp := api.ServerResponse{Type: "RESULT", RequestID: cmd.RequestID}

	var err error
	switch cmd.Action {
	case "SUBSCRIBE":
		err = c.subscribe(cmd.SessionID)

	case "CREATE_SESSION":
		var p struct {
			WorldID string `json:"worldId"`
		}
		if err = json.Unmarshal(cmd.Payload, &p); err == nil {
			resp.Session, err = c.Game.CreateSession(ctx, p.WorldID)
		}

	case "LOAD_SESSION":
		resp.Session, err = c.Game.LoadSession(ctx, cmd.SessionID)

	case "ARCHIVE_SESSION":
		err = c.Game.ArchiveSession(ctx, cmd.SessionID)

	case "LIST_INTERACTIONS":
		var p api.ListPayload
		if p, err = decodePayload[api.ListPayload](cmd.Payload); err == nil {
			resp.Available, err = c.Game.ListAvailableInteractions(ctx, cmd.SessionID, p.LocationID)
		}

	case "EXECUTE_INTERACTION":
		var p api.ExecutePayload
		if p, err = decodePayload[api.ExecutePayload](cmd.Payload); err == nil {
			resp.Session, err = c.Game.ExecuteInteraction(ctx, cmd.SessionID, p)
		}

	case "ADVANCE_TURN":
		resp.Session, err = c.Game.AdvanceTurn(ctx, cmd.SessionID)

	case "GET_RELATIONSHIP":
		var p api.RelationshipPayload
		if p, err = decodePayload[api.RelationshipPayload](cmd.Payload); err == nil {
			resp.Relationship, err = c.Game.GetRelationshipState(ctx, cmd.SessionID, p.NPCID)
		}

	case "BEGIN_PROGRAM":
		var p api.BeginProgramPayload
		if p, err = decodePayload[api.BeginProgramPayload](cmd.Payload); err == nil {
			resp.Transition, err = c.Game.BeginProgram(ctx, cmd.SessionID, p)
		}

	case "CHOOSE":
		var p api.ChoicePayload
		if p, err = decodePayload[api.ChoicePayload](cmd.Payload); err == nil {
			resp.Transition, err = c.Game.Choose(ctx, cmd.SessionID, p)
		}

	case "ABORT_PROGRAM":
		var p api.AbortPayload
		if len(cmd.Payload) > 0 {
			err = json.Unmarshal(cmd.Payload, &p)
		}
		if err == nil {
			resp.Transition, err = c.Game.AbortProgram(ctx, cmd.SessionID, p)
		}

	default:
		err = errors.New("unknown action: " + cmd.Action)
	}

	if err != nil {
		return api.ServerResponse{
			Type:      "ERROR",
			RequestID: cmd.RequestID,
			Error:     errorCode(err) + ": " + err.Error(),
		}
	}
	return resp
}

// subscribe подписывает клиента на события сессии (одна подписка на
// соединение; повторная заменяет прежнюю).
func (c *Client) subscribe(sessionID string) error {
	if sessionID == "" {
		return errors.New("sessionId is required")
	}
	// Проверяем, что сессия существует.
	if _, err := c.Game.LoadSession(context.Background(), sessionID); err != nil {
		return err
	}

	c.unsubscribe()
	c.subscribed = sessionID
	c.events = c.Game.Hub.Subscribe(sessionID)

	go func(events chan api.Event) {
		for ev := range events {
			e := ev
			select {
			case c.Send <- api.ServerResponse{Type: "EVENT", Event: &e}:
			default:
				// Клиент не читает; догонит по журналу событий.
			}
		}
	}(c.events)

	logger.WithSession(sessionID).Info("Client subscribed")
	return nil
}

func (c *Client) unsubscribe() {
	if c.subscribed != "" {
		c.Game.Hub.Unsubscribe(c.subscribed, c.events)
		c.subscribed = ""
		c.events = nil
	}
}

// decodePayload - Unmarshal + Validate в одном месте (как обертки
// типизированных конфигов взаимодействий).
func decodePayload[T api.Validator](raw json.RawMessage) (T, error) {
	var p T
	if len(raw) == 0 {
		return p, errors.New("payload is required")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	return p, p.Validate()
}

// errorCode мапит ошибку движка на стабильный код протокола.
func errorCode(err error) string {
	var (
		schemaErr *domain.SchemaValidationError
		gateErr   *domain.GatingDeniedError
		modeErr   *domain.InvalidModeTransitionError
		cfgErr    *domain.InvalidConfigError
	)
	switch {
	case errors.Is(err, domain.ErrUnknownSession):
		return "UNKNOWN_SESSION"
	case errors.Is(err, domain.ErrUnknownWorld):
		return "UNKNOWN_WORLD"
	case errors.Is(err, domain.ErrUnknownNPC):
		return "UNKNOWN_NPC"
	case errors.Is(err, domain.ErrUnknownInteraction):
		return "UNKNOWN_INTERACTION"
	case errors.Is(err, domain.ErrUnknownProgram):
		return "UNKNOWN_PROGRAM"
	case errors.Is(err, domain.ErrUnknownChoice):
		return "UNKNOWN_CHOICE"
	case errors.Is(err, domain.ErrSessionArchived):
		return "SESSION_ARCHIVED"
	case errors.Is(err, domain.ErrNotTurnBased):
		return "NOT_TURN_BASED"
	case errors.Is(err, domain.ErrConcurrentMutation):
		return "CONCURRENT_MUTATION_CONFLICT"
	case errors.As(err, &gateErr):
		return "GATING_DENIED"
	case errors.As(err, &schemaErr):
		return "SCHEMA_VALIDATION_FAILED"
	case errors.As(err, &modeErr):
		return "INVALID_MODE_TRANSITION"
	case errors.As(err, &cfgErr):
		return "INVALID_CONFIG"
	default:
		return "INTERNAL"
	}
}
