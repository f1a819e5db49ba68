package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/symptom-likelihood-server/internal/domain"
	"github.com/symptom-likelihood-server/internal/logging"
	"github.com/symptom-likelihood-server/internal/middleware"
	"github.com/symptom-likelihood-server/internal/service"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 16 * 1024

	// Upper bound on symptoms held by one session.
	maxStackSize = 256
)

// Stack operations accepted on the socket.
const (
	OpAdd     = "add"
	OpRemove  = "remove"
	OpClear   = "clear"
	OpAnalyze = "analyze"
)

// StackCommand is one client message on the stack socket.
type StackCommand struct {
	Op       string `json:"op"`
	ID       string `json:"id,omitempty"`
	Category string `json:"category,omitempty"`
}

// StackUpdate is sent after every command: the current stack and its
// non-zero ranking.
type StackUpdate struct {
	Type            string               `json:"type"`
	Stack           []string             `json:"stack"`
	UnknownSymptoms []string             `json:"unknown_symptoms"`
	Results         []domain.ScoreResult `json:"results"`
	DatasetVersion  string               `json:"dataset_version"`
	Error           string               `json:"error,omitempty"`
}

// stackSession owns one connection's diagnostic stack. Only the read loop
// mutates the stack; writes are serialised with the ping loop.
type stackSession struct {
	conn     *websocket.Conn
	analysis *service.AnalysisService
	log      *logrus.Entry
	clientID string
	category string
	stack    domain.Selection
	writeMu  sync.Mutex
}

func (s *Server) handleStackSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to upgrade stack connection")
		return
	}

	session := &stackSession{
		conn:     conn,
		analysis: s.analysis,
		log:      logging.FromContext(c.Request.Context(), s.logger),
		clientID: middleware.ClientKey(c),
		stack:    domain.NewSelection(),
	}
	session.log.Info("Stack session opened")
	session.run(context.WithoutCancel(c.Request.Context()))
	session.log.Info("Stack session closed")
}

func (ss *stackSession) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer ss.conn.Close()

	go ss.pingLoop(ctx)

	ss.conn.SetReadLimit(maxMessageSize)
	ss.conn.SetReadDeadline(time.Now().Add(pongWait))
	ss.conn.SetPongHandler(func(string) error {
		return ss.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if err := ss.send(ss.update(ctx)); err != nil {
		return
	}

	for {
		_, message, err := ss.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ss.log.WithError(err).Warn("Stack socket read error")
			}
			return
		}

		var reply StackUpdate
		var cmd StackCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			ss.log.WithError(err).Debug("Malformed stack command")
			reply = ss.failure(fmt.Errorf("malformed command: %w", err))
		} else {
			reply = ss.apply(ctx, cmd)
		}
		if err := ss.send(reply); err != nil {
			ss.log.WithError(err).Warn("Stack socket write error")
			return
		}
	}
}

// apply mutates the stack for cmd and returns the message to send back.
func (ss *stackSession) apply(ctx context.Context, cmd StackCommand) StackUpdate {
	cmd.ID = strings.TrimSpace(cmd.ID)
	switch cmd.Op {
	case OpAdd:
		if cmd.ID == "" {
			return ss.failure(fmt.Errorf("op %q requires an id", cmd.Op))
		}
		if len(ss.stack) >= maxStackSize && !ss.stack.Contains(cmd.ID) {
			return ss.failure(fmt.Errorf("stack is full (%d symptoms)", maxStackSize))
		}
		ss.stack = ss.stack.Add(cmd.ID)
	case OpRemove:
		if cmd.ID == "" {
			return ss.failure(fmt.Errorf("op %q requires an id", cmd.Op))
		}
		ss.stack = ss.stack.Remove(cmd.ID)
	case OpClear:
		ss.stack = domain.NewSelection()
	case OpAnalyze:
		if cmd.Category != "" {
			if _, ok := ss.analysis.Dataset().Category(cmd.Category); !ok {
				return ss.failure(fmt.Errorf("unknown category %q", cmd.Category))
			}
		}
		ss.category = cmd.Category
	default:
		return ss.failure(fmt.Errorf("unknown op %q", cmd.Op))
	}
	return ss.update(ctx)
}

func (ss *stackSession) update(ctx context.Context) StackUpdate {
	result, err := ss.analysis.Analyze(ctx, &service.AnalyzeParams{
		Selection: ss.stack,
		Category:  ss.category,
		ClientID:  ss.clientID,
	})
	if err != nil {
		return ss.failure(err)
	}
	return StackUpdate{
		Type:            "stack",
		Stack:           result.Selection,
		UnknownSymptoms: result.UnknownSymptoms,
		Results:         result.Results,
		DatasetVersion:  result.DatasetVersion,
	}
}

func (ss *stackSession) failure(err error) StackUpdate {
	return StackUpdate{
		Type:            "error",
		Stack:           append([]string{}, ss.stack...),
		UnknownSymptoms: []string{},
		Results:         []domain.ScoreResult{},
		DatasetVersion:  ss.analysis.Dataset().Version(),
		Error:           err.Error(),
	}
}

func (ss *stackSession) send(msg StackUpdate) error {
	ss.writeMu.Lock()
	defer ss.writeMu.Unlock()
	ss.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return ss.conn.WriteJSON(msg)
}

func (ss *stackSession) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ss.writeMu.Lock()
			err := ss.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			ss.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
