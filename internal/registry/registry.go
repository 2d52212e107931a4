// Package registry maps command names to the handlers the server dispatches
// REQUEST messages to.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/auth"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/logger"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/message"
)

var (
	ErrDuplicateCommand = errors.New("duplicate command")
	ErrInvalidArgument  = message.ErrInvalidArgument
)

// Handler receives the request params and returns the response params.
// ctx is cancelled when the originating connection closes.
type Handler func(ctx context.Context, params message.Params) (message.Params, error)

type Command struct {
	Name        string
	Description string
	// Permission is the minimum level a session needs. Zero means read.
	Permission auth.Permission
	Handler    Handler
}

type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

func New() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

func (r *Registry) Register(cmd Command, overwrite bool) error {
	cmd.Name = strings.TrimSpace(cmd.Name)
	if cmd.Name == "" {
		return fmt.Errorf("%w: command name is blank", ErrInvalidArgument)
	}
	if cmd.Handler == nil {
		return fmt.Errorf("%w: handler for %s is nil", ErrInvalidArgument, cmd.Name)
	}
	if cmd.Permission == auth.PermissionNone {
		cmd.Permission = auth.PermissionRead
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[cmd.Name]; exists {
		if !overwrite {
			return fmt.Errorf("%w: %s", ErrDuplicateCommand, cmd.Name)
		}
		logger.DebugF("Command %s overwritten", cmd.Name)
	}
	r.commands[cmd.Name] = cmd
	return nil
}

// Handle is shorthand for registering a read level command.
func (r *Registry) Handle(name, description string, handler Handler, overwrite bool) error {
	return r.Register(Command{Name: name, Description: description, Handler: handler}, overwrite)
}

// Handler returns the handler for name, or false when it is not registered.
func (r *Registry) Handler(name string) (Handler, bool) {
	cmd, ok := r.Lookup(name)
	if !ok {
		return nil, false
	}
	return cmd.Handler, true
}

func (r *Registry) Lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[strings.TrimSpace(name)]
	return cmd, ok
}

func (r *Registry) Descriptions() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.commands))
	for name, cmd := range r.commands {
		out[name] = cmd.Description
	}
	return out
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
