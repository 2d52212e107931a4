package server

import (
	"context"
	"time"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/message"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/registry"
)

const (
	HelpCommand = "help"
	PingCommand = "ping"
)

// RegisterBuiltins adds the commands every server answers.
func RegisterBuiltins(reg *registry.Registry) error {
	help := func(context.Context, message.Params) (message.Params, error) {
		commands := make(map[string]any)
		for name, description := range reg.Descriptions() {
			commands[name] = description
		}
		return message.Params{"commands": commands}, nil
	}
	ping := func(context.Context, message.Params) (message.Params, error) {
		return message.Params{"message": "pong", "time": time.Now().UTC().Format(time.RFC3339)}, nil
	}

	if err := reg.Handle(HelpCommand, "List available commands and their descriptions", help, false); err != nil {
		return err
	}
	return reg.Handle(PingCommand, "Check that the server is responsive", ping, false)
}
