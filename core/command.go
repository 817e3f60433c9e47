package core

import (
	"sort"
	"sync"

	"pulsegen/protocol"
)

// CommandHandler handles one command token. It pulls its own arguments from
// the tokenizer and writes any reply to w.
type CommandHandler func(args *protocol.Tokenizer, w protocol.ReplyWriter)

// Command represents a text protocol command
type Command struct {
	ID      uint16
	Name    string
	Format  string // argument summary for help output (e.g., "ch,t1,t2,...")
	Handler CommandHandler
}

// CommandRegistry maps command tokens to handlers
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[uint16]*Command
	nameToID map[string]uint16
	nextID   uint16
}

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[uint16]*Command),
		nameToID: make(map[string]uint16),
	}
}

// Register adds a command to the registry. Registering a name twice keeps
// the first handler and returns its ID.
func (r *CommandRegistry) Register(name string, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.nameToID[name]; exists {
		return id
	}

	id := r.nextID
	r.nextID++

	r.commands[id] = &Command{
		ID:      id,
		Name:    name,
		Format:  format,
		Handler: handler,
	}
	r.nameToID[name] = id
	return id
}

// GetCommand retrieves a command by ID
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

// Lookup finds a command by its token. Tokens are case-sensitive.
func (r *CommandRegistry) Lookup(token []byte) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[string(token)]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

// Count returns the number of registered commands
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch calls the handler registered for token. It reports whether a
// handler was found.
func (r *CommandRegistry) Dispatch(token []byte, args *protocol.Tokenizer, w protocol.ReplyWriter) bool {
	cmd, ok := r.Lookup(token)
	if !ok || cmd.Handler == nil {
		return false
	}
	cmd.Handler(args, w)
	return true
}

// Names returns the registered command names in sorted order
func (r *CommandRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.nameToID))
	for name := range r.nameToID {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Help returns one "NAME,format" line per command
func (r *CommandRegistry) Help() string {
	out := ""
	for _, name := range r.Names() {
		cmd, _ := r.Lookup([]byte(name))
		if cmd.Format != "" {
			out += cmd.Name + "," + cmd.Format + "\n"
		} else {
			out += cmd.Name + "\n"
		}
	}
	return out
}
