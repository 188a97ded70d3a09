package socketiotracker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/lmrun/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// errDisconnected is returned when emitting on a closed connection.
var errDisconnected = errors.New("socket.io client is not connected")

// client is the part of a socket.io connection the tracker needs.
type client interface {
	Emit(event string, data any) error
	Close()
	ID() string
}

type dialFunc func(ctx context.Context) (client, error)

// socketClient adapts *socket.Socket to client.
type socketClient struct {
	io *socket.Socket
}

func (c *socketClient) Emit(event string, data any) error {
	if !c.io.Connected() {
		return errDisconnected
	}
	return c.io.Emit(event, data)
}

func (c *socketClient) Close() {
	c.io.Disconnect()
}

func (c *socketClient) ID() string {
	return c.io.Id()
}

// notify sends a connection outcome without blocking. Once ch holds an
// outcome, later ones are dropped.
func notify(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

// dialer returns a dialFunc that connects to rawURL and waits for the
// connection to be established.
func dialer(rawURL, namespace string, insecure bool, timeout time.Duration) dialFunc {
	return func(ctx context.Context) (client, error) {
		logger := ctxlog.FromContext(ctx).With("tracker", Name, "url", rawURL)

		parsedURL, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse URL: %w", err)
		}

		opts := socket.DefaultOptions()
		opts.SetPath(parsedURL.Path)
		if insecure {
			logger.Warn("Skipping TLS certificate verification")
			opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
		}
		opts.SetTransports(types.NewSet(transports.WebSocket))

		connectChan := make(chan error, 1)

		baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
		manager := socket.NewManager(baseURL, opts)
		io := manager.Socket(namespace, opts)

		io.Once(types.EventName("connect"), func(...any) {
			logger.Debug("Connected to tracking server", "sid", io.Id())
			notify(connectChan, nil)
		})
		io.Once(types.EventName("connect_error"), func(errs ...any) {
			err := errors.New("connect_error")
			if len(errs) > 0 {
				if e, ok := errs[0].(error); ok {
					err = e
				}
			}
			notify(connectChan, err)
		})

		io.Connect()

		select {
		case err := <-connectChan:
			if err != nil {
				io.Disconnect()
				return nil, fmt.Errorf("socket.io connection failed: %w", err)
			}
			return &socketClient{io: io}, nil
		case <-ctx.Done():
			io.Disconnect()
			return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
		case <-time.After(timeout):
			io.Disconnect()
			return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
		}
	}
}
