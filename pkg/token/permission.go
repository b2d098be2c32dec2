package token

import (
	"fmt"
	"strings"
)

// Permission is a bitmask of actions a token is allowed to perform on its
// document. Permissions combine with bitwise OR, so one token can carry any
// subset of them.
type Permission uint8

const (
	// PermissionWrite allows appending new revisions.
	PermissionWrite Permission = 1 << iota
	// PermissionDelete allows deleting the document and all its revisions.
	PermissionDelete
	// PermissionShare allows deriving new tokens with a subset of permissions.
	PermissionShare
	// PermissionWebhook allows managing webhooks on the document.
	PermissionWebhook
)

// PermissionAll is the full permission set carried by root tokens.
const PermissionAll = PermissionWrite | PermissionDelete | PermissionShare | PermissionWebhook

var permissionNames = map[Permission]string{
	PermissionWrite:   "write",
	PermissionDelete:  "delete",
	PermissionShare:   "share",
	PermissionWebhook: "webhook",
}

// Has reports whether all bits of q are set in p.
func (p Permission) Has(q Permission) bool {
	return p&q == q
}

// Names returns the string form of each permission bit set in p, in a
// stable order.
func (p Permission) Names() []string {
	var names []string
	for _, perm := range []Permission{PermissionWrite, PermissionDelete, PermissionShare, PermissionWebhook} {
		if p.Has(perm) {
			names = append(names, permissionNames[perm])
		}
	}
	return names
}

// String returns a comma-joined list of permission names, e.g.
// "write,share".
func (p Permission) String() string {
	return strings.Join(p.Names(), ",")
}

// ParsePermission converts a single permission name to its bit.
func ParsePermission(name string) (Permission, error) {
	for perm, n := range permissionNames {
		if n == name {
			return perm, nil
		}
	}
	return 0, fmt.Errorf("unknown permission: %q", name)
}

// ParsePermissions converts a list of permission names into a combined
// bitmask. An empty list is an error; callers requesting a token must name
// at least one permission.
func ParsePermissions(names []string) (Permission, error) {
	if len(names) == 0 {
		return 0, ErrNoPermissions
	}
	var mask Permission
	for _, name := range names {
		perm, err := ParsePermission(name)
		if err != nil {
			return 0, err
		}
		mask |= perm
	}
	return mask, nil
}
