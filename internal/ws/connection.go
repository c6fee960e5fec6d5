package ws

import (
	"context"
	"errors"
	"sync"

	"wordflight/internal/models"
)

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type messageHub interface {
	Join(connID, userName string) <-chan models.ServerMessage
	Leave(connID string)
	Dispatch(connID string, msg models.ClientMessage)
}

type Connection struct {
	ws         wsConnection
	hub        messageHub
	connID     string
	fromClient chan models.ClientMessage
	fromServer <-chan models.ServerMessage
	errorCh    chan error
}

func NewConnection(
	hub messageHub,
	ws wsConnection,
	connID string,
	userName string,
) *Connection {
	return &Connection{
		ws:         ws,
		hub:        hub,
		connID:     connID,
		fromClient: make(chan models.ClientMessage),
		fromServer: hub.Join(connID, userName),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.fromClient)
		close(c.errorCh)
		c.hub.Leave(c.connID)
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

	if err != nil && !errors.Is(err, context.Canceled) {
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
			c.hub.Dispatch(c.connID, msg)
		case msg, ok := <-c.fromServer:
			if !ok {
				// Session is gone.
				return nil
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
