// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/wayfarer-systems/terminus/services/navigation/datatypes"
	"github.com/wayfarer-systems/terminus/services/navigation/session"
)

const (
	// writeWait bounds how long one websocket write may take.
	writeWait = 5 * time.Second
	// pingInterval keeps NAT mappings and proxies from reaping idle
	// guidance streams between waypoints.
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 16 * 1024,
}

// HandleSessionStream handles GET /v1/navigation/:id/stream.
//
// Description:
//
//	Upgrades to a websocket and streams the session's guidance events as
//	JSON frames until the session reaches a terminal state or the client
//	disconnects. The subscription buffer absorbs short stalls; a client
//	that cannot keep up misses intermediate updates rather than stalling
//	the guidance loop.
func (h *Handlers) HandleSessionStream(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	log := h.log.With("request_id", requestID, "handler", "HandleSessionStream")
	sessionID := c.Param("id")

	events, unsubscribe, err := h.sessions.Subscribe(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{
			Error: err.Error(), Code: "SESSION_NOT_FOUND",
		})
		return
	}
	defer unsubscribe()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("websocket upgrade failed", "error", err.Error())
		return
	}
	defer ws.Close()
	log.Info("guidance stream connected", "session_id", sessionID)

	// Reader goroutine: we never expect client frames, but reading is
	// what surfaces close frames and pong responses.
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pings := time.NewTicker(pingInterval)
	defer pings.Stop()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				// Session reached a terminal state and tore down.
				log.Info("guidance stream closed", "session_id", sessionID)
				deadline := time.Now().Add(writeWait)
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
					deadline)
				return
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(e); err != nil {
				log.Warn("guidance stream write failed", "session_id", sessionID, "error", err.Error())
				return
			}
			if e.Type == session.EventCompleted || e.Type == session.EventCancelled || e.Type == session.EventError {
				return
			}

		case <-pings.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-clientGone:
			log.Info("guidance stream client disconnected", "session_id", sessionID)
			return
		}
	}
}
