package config

import (
	"fmt"
	"sort"
	"strings"
)

// CommandRegistry maps cmd_id to immutable command metadata. Built once
// at config load; read-only for the lifetime of a session.
type CommandRegistry struct {
	commands map[string]CommandMeta
}

// NewCommandRegistry builds a registry from parsed command metadata,
// stamping each entry with its cmd_id.
func NewCommandRegistry(commands map[string]CommandMeta) *CommandRegistry {
	reg := &CommandRegistry{commands: make(map[string]CommandMeta, len(commands))}
	for id, meta := range commands {
		meta.CmdID = id
		reg.commands[id] = meta
	}
	return reg
}

// Get returns the metadata for cmd_id. ErrUnknownCommand when absent,
// ErrInvalidMeta when the entry has no command template.
func (r *CommandRegistry) Get(cmdID string) (CommandMeta, error) {
	meta, ok := r.commands[cmdID]
	if !ok {
		return CommandMeta{}, fmt.Errorf("%w: %s", ErrUnknownCommand, cmdID)
	}
	if meta.Cmd == "" {
		return CommandMeta{}, fmt.Errorf("%w: %s", ErrInvalidMeta, cmdID)
	}
	return meta, nil
}

// Has reports whether cmd_id is registered with a valid template.
func (r *CommandRegistry) Has(cmdID string) bool {
	_, err := r.Get(cmdID)
	return err == nil
}

// IDs returns all registered cmd_ids in sorted order.
func (r *CommandRegistry) IDs() []string {
	ids := make([]string, 0, len(r.commands))
	for id := range r.commands {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered commands.
func (r *CommandRegistry) Len() int {
	return len(r.commands)
}

// RenderCommand substitutes {service} and {pid} into a template.
// Substitution is literal; a placeholder present in the template with an
// empty argument yields ErrMissingParameter.
func RenderCommand(template, service, pid string) (string, error) {
	if strings.Contains(template, "{service}") && service == "" {
		return "", fmt.Errorf("%w: service", ErrMissingParameter)
	}
	if strings.Contains(template, "{pid}") && pid == "" {
		return "", fmt.Errorf("%w: pid", ErrMissingParameter)
	}
	rendered := strings.ReplaceAll(template, "{service}", service)
	rendered = strings.ReplaceAll(rendered, "{pid}", pid)
	return rendered, nil
}
