// Package http exposes the quiz flows over a websocket gateway: one
// connection owns one single-player session and at most one room membership.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nthbao13/cloud-quiz/internal/domain"
	"github.com/nthbao13/cloud-quiz/internal/quizbank"
	"github.com/nthbao13/cloud-quiz/internal/room"
	"github.com/nthbao13/cloud-quiz/internal/session"
	"github.com/nthbao13/cloud-quiz/internal/store"
)

type WSHandler struct {
	store     store.Store
	bank      quizbank.Bank
	roomCfg   room.Config
	grader    session.Grader
	explainer session.Explainer
	upgrader  websocket.Upgrader
}

func NewWSHandler(st store.Store, bank quizbank.Bank, roomCfg room.Config, grader session.Grader, explainer session.Explainer) *WSHandler {
	return &WSHandler{
		store:     st,
		bank:      bank,
		roomCfg:   roomCfg,
		grader:    grader,
		explainer: explainer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

var (
	errInvalidPayload  = errors.New("invalid payload")
	errUnsupportedType = errors.New("unsupported message type")
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type roomCodePayload struct {
	Code string `json:"code"`
}

type joinRoomPayload struct {
	Code string `json:"code"`
}

type startGamePayload struct {
	Topic string `json:"topic"`
}

type selectPayload struct {
	Option string `json:"option"`
}

type startQuizPayload struct {
	Quiz    string `json:"quiz"`
	Shuffle bool   `json:"shuffle"`
}

type answerPayload struct {
	Selections []string `json:"selections"`
	Essay      string   `json:"essay"`
}

type verdictPayload struct {
	Correct     bool     `json:"correct"`
	IsEssay     bool     `json:"isEssay"`
	Selected    []string `json:"selected"`
	Explanation string   `json:"explanation"`
}

type quizListPayload struct {
	Quizzes []string `json:"quizzes"`
}

// ServeWS upgrades the request and runs the connection's message loop. The
// name query parameter is the player's display name for room operations.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "missing name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sync := room.NewSynchronizer(h.store, h.bank, h.roomCfg)
	ctrl := session.NewController(h.bank, h.grader, session.WithExplainer(h.explainer))
	defer sync.Close(context.Background())

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	snapshotsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(snapshotsDone)
		for {
			select {
			case snap := <-sync.Events():
				select {
				case send <- outboundMessage[any]{Type: "roomState", Payload: snap}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "quizzes", Payload: quizListPayload{Quizzes: h.bank.Names()}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r.Context(), inbound, name, sync, ctrl, send)
	}

	close(closeSignals)
	<-snapshotsDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, inbound inboundMessage, name string, sync *room.Synchronizer, ctrl *session.Controller, send chan<- outboundMessage[any]) {
	fail := func(err error) {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
	}

	switch inbound.Type {
	case "createRoom":
		code, err := sync.CreateRoom(ctx, name)
		if err != nil {
			fail(err)
			return
		}
		send <- outboundMessage[any]{Type: "roomCreated", Payload: roomCodePayload{Code: code}}

	case "joinRoom":
		var payload joinRoomPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail(errInvalidPayload)
			return
		}
		if err := sync.JoinRoom(ctx, payload.Code, name); err != nil {
			fail(err)
		}

	case "startGame":
		var payload startGamePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail(errInvalidPayload)
			return
		}
		if err := sync.StartGame(ctx, payload.Topic); err != nil {
			fail(err)
		}

	case "select":
		var payload selectPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail(errInvalidPayload)
			return
		}
		sync.Select(payload.Option)

	case "submit":
		if err := sync.Submit(ctx); err != nil {
			fail(err)
		}

	case "leave":
		sync.Leave(ctx)

	case "playAgain":
		if err := sync.PlayAgain(ctx); err != nil {
			fail(err)
		}

	case "startQuiz":
		var payload startQuizPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail(errInvalidPayload)
			return
		}
		if err := ctrl.Start(ctx, payload.Quiz, payload.Shuffle); err != nil {
			fail(err)
			return
		}
		h.sendQuestion(ctrl, send)

	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail(errInvalidPayload)
			return
		}
		var record domain.AnswerRecord
		var explanation string
		var err error
		if payload.Essay != "" {
			record, explanation, err = ctrl.SubmitEssay(ctx, payload.Essay)
		} else {
			record, explanation, err = ctrl.Submit(ctx, payload.Selections)
		}
		if err != nil {
			fail(err)
			return
		}
		send <- outboundMessage[any]{Type: "verdict", Payload: verdictPayload{
			Correct:     record.Correct,
			IsEssay:     record.IsEssay,
			Selected:    record.Selected,
			Explanation: explanation,
		}}

	case "next":
		if ctrl.Advance(ctx) {
			h.sendQuestion(ctrl, send)
			return
		}
		send <- outboundMessage[any]{Type: "results", Payload: ctrl.Results()}

	case "retryWrong":
		if err := ctrl.RetryWrong(ctx); err != nil {
			fail(err)
			return
		}
		h.sendQuestion(ctrl, send)

	default:
		fail(errUnsupportedType)
	}
}

func (h *WSHandler) sendQuestion(ctrl *session.Controller, send chan<- outboundMessage[any]) {
	if rendered, ok := ctrl.Render(); ok {
		send <- outboundMessage[any]{Type: "question", Payload: rendered}
	}
}
