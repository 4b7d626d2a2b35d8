package http

import (
	"net/http"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// FeedHandler streams submitted attempts of one quiz to instructors.
type FeedHandler struct {
	service  *app.QuizService
	quizzes  *QuizHandler
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewFeedHandler(service *app.QuizService, quizzes *QuizHandler, checkOrigin func(*http.Request) bool, logger *zap.Logger) *FeedHandler {
	return &FeedHandler{
		service: service,
		quizzes: quizzes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type subscribedPayload struct {
	QuizID string `json:"quizId"`
}

// ServeWS authorizes the caller before upgrading, so 401/403/404 are plain
// HTTP responses. After the upgrade the connection only receives events.
func (h *FeedHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	quizID := chi.URLParam(r, "quizId")

	events, cancel, err := h.service.SubscribeAttempts(r.Context(), principal, quizID)
	if err != nil {
		h.quizzes.writeServiceError(w, r, err, "Failed to subscribe")
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write failed", zap.String("quiz_id", quizID), zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: event.Type, Payload: event}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "subscribed", Payload: subscribedPayload{QuizID: quizID}}
	h.logger.Info("feed subscribed", zap.String("quiz_id", quizID), zap.String("principal_id", principal.ID))

	// Inbound frames are ignored; reading only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}
