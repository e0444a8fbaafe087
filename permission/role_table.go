package permission

import (
	"errors"
	"sync"
)

// RoleTable binds role names to permission masks.
type RoleTable struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string]Mask
	frozen bool
}

// NewRoleTable creates an empty table over registry.
func NewRoleTable(registry *Registry) *RoleTable {
	return &RoleTable{
		registry: registry,
		roles:    make(map[string]Mask),
	}
}

// Define registers roleName with the given permissions. Every permission must already be
// in the registry.
func (rt *RoleTable) Define(roleName string, permissionNames []string) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.frozen {
		return errors.New("role table frozen")
	}

	if roleName == "" {
		return errors.New("role name empty")
	}

	if _, exists := rt.roles[roleName]; exists {
		return errors.New("role already registered")
	}

	var mask Mask
	for _, perm := range permissionNames {
		bit, ok := rt.registry.Bit(perm)
		if !ok {
			return errors.New("permission not registered: " + perm)
		}
		mask = mask.Set(bit)
	}

	rt.roles[roleName] = mask
	return nil
}

// Mask returns the mask for roleName.
func (rt *RoleTable) Mask(roleName string) (Mask, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	mask, ok := rt.roles[roleName]
	return mask, ok
}

// Permissions returns the permission names granted to roleName.
func (rt *RoleTable) Permissions(roleName string) ([]string, bool) {
	mask, ok := rt.Mask(roleName)
	if !ok {
		return nil, false
	}
	return rt.registry.Names(mask), true
}

// Freeze prevents further definitions.
func (rt *RoleTable) Freeze() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.frozen = true
}

// Count returns the number of defined roles.
func (rt *RoleTable) Count() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.roles)
}
