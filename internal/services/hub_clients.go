package services

import (
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	wsSendBuffer   = 16
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 10 * time.Second
	wsReadTimeout  = 60 * time.Second
)

type WSClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func NewWSClient(id string, conn *websocket.Conn) *WSClient {
	return &WSClient{id: id, conn: conn, send: make(chan []byte, wsSendBuffer)}
}

func (c *WSClient) close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *WSClient) writeLoop() {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) readPump(onDone func()) {
	defer onDone()
	c.conn.SetReadLimit(1 << 20)
	c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
