package core

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/DelfiSpace/DSPI/protocol"
)

var (
	ErrUnknownCommand   = errors.New("unknown command ID")
	ErrDuplicateCommand = errors.New("command ID already registered")
)

// CommandHandler decodes its arguments from args and may write one
// response message into reply. An empty reply is sent as a bare ack.
type CommandHandler func(args *[]byte, reply protocol.OutputBuffer) error

// Command binds a bridge message to its handler
type Command struct {
	protocol.Message
	Handler CommandHandler
}

// CommandRegistry maps message IDs to handlers
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[uint32]*Command
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[uint32]*Command),
	}
}

// Register installs the handler for a command listed in protocol.Messages
func (r *CommandRegistry) Register(id uint32, handler CommandHandler) error {
	msg, ok := protocol.Lookup(id)
	if !ok {
		return ErrUnknownCommand
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[id]; exists {
		return ErrDuplicateCommand
	}
	r.commands[id] = &Command{Message: msg, Handler: handler}
	return nil
}

// MustRegister is Register for handlers installed at startup; it panics
// on an unknown or duplicate ID
func (r *CommandRegistry) MustRegister(id uint32, handler CommandHandler) {
	if err := r.Register(id, handler); err != nil {
		panic("command " + strconv.FormatUint(uint64(id), 10) + ": " + err.Error())
	}
}

// GetCommand retrieves a command by ID
func (r *CommandRegistry) GetCommand(id uint32) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

// Count returns the number of registered commands
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch calls the handler registered for id
func (r *CommandRegistry) Dispatch(id uint32, args *[]byte, reply protocol.OutputBuffer) error {
	cmd, ok := r.GetCommand(id)
	if !ok || cmd.Handler == nil {
		return ErrUnknownCommand
	}
	return cmd.Handler(args, reply)
}

// Dictionary lists the registered commands, one "id name format" per line
// in ID order
func (r *CommandRegistry) Dictionary() string {
	r.mu.RLock()
	ids := make([]int, 0, len(r.commands))
	for id := range r.commands {
		ids = append(ids, int(id))
	}
	r.mu.RUnlock()
	sort.Ints(ids)

	var sb strings.Builder
	for _, id := range ids {
		cmd, _ := r.GetCommand(uint32(id))
		sb.WriteString(strconv.Itoa(id))
		sb.WriteByte(' ')
		sb.WriteString(cmd.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
