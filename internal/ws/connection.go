package ws

import (
	"context"
	"errors"
	"sync"

	"parley/internal/models"
)

var errSessionClosed = errors.New("session closed by server")

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type messageHub interface {
	Join(userID string) chan models.ServerMessage
	Leave(userID string, ch chan models.ServerMessage) bool
}

// Handler receives the intents a client sends over its socket.
type Handler interface {
	Connected(ctx context.Context, userID string)
	Disconnected(ctx context.Context, userID string)
	// Handle may return a reply for the sender only, e.g. an error.
	Handle(ctx context.Context, userID string, msg models.ClientMessage) *models.ServerMessage
}

type Connection struct {
	ws         wsConnection
	hub        messageHub
	handler    Handler
	userID     string
	fromClient chan models.ClientMessage
	fromServer chan models.ServerMessage
	errorCh    chan error
}

func NewConnection(
	hub messageHub,
	handler Handler,
	ws wsConnection,
	userID string,
) *Connection {
	return &Connection{
		ws:         ws,
		hub:        hub,
		handler:    handler,
		userID:     userID,
		fromClient: make(chan models.ClientMessage),
		fromServer: hub.Join(userID),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	c.handler.Connected(ctx, c.userID)

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.fromClient)
		close(c.errorCh)
		// A newer session of the same user may have replaced this one.
		if c.hub.Leave(c.userID, c.fromServer) {
			c.handler.Disconnected(context.WithoutCancel(ctx), c.userID)
		}
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errSessionClosed) {
		return err
	}

	return nil
}

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		var msg models.ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			return err
		}
		select {
		case c.fromClient <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case msg := <-c.fromClient:
			if reply := c.handler.Handle(ctx, c.userID, msg); reply != nil {
				if err := c.ws.WriteJSON(*reply); err != nil {
					return err
				}
			}
		case msg, ok := <-c.fromServer:
			if !ok {
				return errSessionClosed
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
