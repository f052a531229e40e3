package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Role of a user account.
type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleHR         Role = "hr"
	RoleEmployee   Role = "employee"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleSuperadmin, RoleAdmin, RoleHR, RoleEmployee:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// IsAdmin reports whether the role may mutate policy.
func (r Role) IsAdmin() bool {
	return r == RoleSuperadmin || r == RoleAdmin
}

// Productivity is the tri-state productivity flag of applications,
// categories and usage rows.
type Productivity string

const (
	ProductivityUnknown      Productivity = "unknown"
	ProductivityProductive   Productivity = "productive"
	ProductivityUnproductive Productivity = "unproductive"
)

func ParseProductivity(s string) (Productivity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown", "null":
		return ProductivityUnknown, nil
	case "productive", "1", "true":
		return ProductivityProductive, nil
	case "unproductive", "0", "false":
		return ProductivityUnproductive, nil
	}
	return "", fmt.Errorf("unknown productivity %q", s)
}

// UnmarshalJSON accepts the enum names as well as the booleans and 1/0
// integers agents send for is_productive. null means unknown.
func (p *Productivity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	parsed, err := ParseProductivity(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Permission is the state of a device on a machine.
type Permission string

const (
	PermissionPending Permission = "pending"
	PermissionAllowed Permission = "allowed"
	PermissionBlocked Permission = "blocked"
)

// PermissionAction is an administrator decision applied to a device.
type PermissionAction string

const (
	ActionAllow   PermissionAction = "allow"
	ActionBlock   PermissionAction = "block"
	ActionUnblock PermissionAction = "unblock"
)

func ParsePermissionAction(s string) (PermissionAction, error) {
	switch a := PermissionAction(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionAllow, ActionBlock, ActionUnblock:
		return a, nil
	}
	return "", fmt.Errorf("unknown permission action %q", s)
}

// Apply returns the permission that results from applying a to p.
// Unblock only clears a block and leaves an allowed device allowed.
func (a PermissionAction) Apply(p Permission) Permission {
	switch a {
	case ActionAllow:
		return PermissionAllowed
	case ActionBlock:
		return PermissionBlocked
	case ActionUnblock:
		if p == PermissionBlocked {
			return PermissionPending
		}
	}
	return p
}

// Scope of a block rule.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeUser    Scope = "user"
	ScopeMachine Scope = "machine"
)

func ParseScope(s string) (Scope, error) {
	switch sc := Scope(strings.ToLower(strings.TrimSpace(s))); sc {
	case ScopeGlobal, ScopeUser, ScopeMachine:
		return sc, nil
	case "":
		return ScopeGlobal, nil
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

// Timeline entry kinds.
const (
	TimelineApplication = "application"
	TimelineWebsite     = "website"
	TimelineIdle        = "idle"
)

// Device log actions.
const (
	DeviceActionConnected    = "connected"
	DeviceActionDisconnected = "disconnected"
	DeviceActionBlocked      = "blocked"
	DeviceActionAllowed      = "allowed"
	DeviceActionUnblocked    = "unblocked"
	DeviceActionDeleted      = "deleted"
)
