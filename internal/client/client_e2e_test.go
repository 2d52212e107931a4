package client

import (
	"context"
	"testing"
	"time"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/auth"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/message"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/registry"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) *server.Server {
	t.Helper()
	reg := registry.New()
	require.NoError(t, server.RegisterBuiltins(reg))
	require.NoError(t, reg.Handle("echo", "Return the request params", func(_ context.Context, params message.Params) (message.Params, error) {
		return params, nil
	}, false))
	require.NoError(t, reg.Register(registry.Command{
		Name:       "shutdown",
		Permission: auth.PermissionFull,
		Handler: func(context.Context, message.Params) (message.Params, error) {
			return message.Params{"ok": true}, nil
		},
	}, false))

	srv := server.New(server.Options{Address: "127.0.0.1:0"}, reg, auth.NewStaticCredentials(map[string]auth.Permission{
		"test":   auth.PermissionFull,
		"viewer": auth.PermissionRead,
	}))
	require.NoError(t, srv.Listen())
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv
}

func dialServer(t *testing.T, srv *server.Server, key string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), Options{Address: srv.Addr().String(), Key: key})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestEndToEndHelpAfterHandshake(t *testing.T) {
	c := dialServer(t, startServer(t), "test")

	params, err := c.Call(context.Background(), "help", nil)
	require.NoError(t, err)
	commands, ok := params["commands"].(map[string]any)
	require.True(t, ok, "unexpected reply %v", params)
	assert.Contains(t, commands, "help")
	assert.Contains(t, commands, "echo")
	assert.NotEmpty(t, c.Token())

	// the token is reused without another challenge
	token := c.Token()
	params, err = c.Call(context.Background(), "echo", message.Params{"a": "b"})
	require.NoError(t, err)
	assert.Equal(t, message.Params{"a": "b"}, params)
	assert.Equal(t, token, c.Token())
}

func TestEndToEndWrongKey(t *testing.T) {
	c := dialServer(t, startServer(t), "nope")

	_, err := c.Call(context.Background(), "help", nil)
	assert.ErrorIs(t, err, ErrHandshakeFailed)
	assert.Empty(t, c.Token())
}

func TestEndToEndUnknownCommand(t *testing.T) {
	c := dialServer(t, startServer(t), "test")

	_, err := c.Call(context.Background(), "missing", nil)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, message.CodeUnknownCommand, remote.Code)
	assert.Equal(t, "unknown command: missing", remote.Message)
}

func TestEndToEndPermissionDenied(t *testing.T) {
	c := dialServer(t, startServer(t), "viewer")

	_, err := c.Call(context.Background(), "shutdown", nil)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, message.CodePermissionDenied, remote.Code)

	_, err = c.Call(context.Background(), "ping", nil)
	assert.NoError(t, err)
}
