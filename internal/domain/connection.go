// Package domain contains entity without logic, just meta-data
package domain

import "github.com/google/uuid"

// ConnectionID identifies one attached client for the lifetime of its transport.
type ConnectionID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

// Role is what a connection does with audio. It is assigned once.
type Role int

const (
	RoleUnassigned Role = iota
	RoleSender
	RoleReceiver
)

func (r Role) String() string {
	switch r {
	case RoleSender:
		return "sender"
	case RoleReceiver:
		return "receiver"
	default:
		return "unassigned"
	}
}
