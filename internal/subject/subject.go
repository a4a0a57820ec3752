// Package subject maps routing targets to bus subject names.
package subject

// Names builds the bus subjects for one hub. Distinct hub names never
// collide on the bus because every subject is prefixed with the hub name.
//
// Subjects are built by plain concatenation; identifiers containing the
// "." separator are the caller's problem.
type Names struct {
	hub string
}

// New returns the subject namespace for the given hub name.
func New(hub string) Names {
	return Names{hub: hub}
}

// Hub returns the hub name this namespace was built for.
func (n Names) Hub() string { return n.hub }

// All is the subject every connection of the hub listens on.
func (n Names) All() string { return n.hub }

// Connection is the subject addressing a single connection.
func (n Names) Connection(connectionID string) string {
	return n.hub + ".conn." + connectionID
}

// Group is the subject addressing a named group.
func (n Names) Group(groupName string) string {
	return n.hub + ".group." + groupName
}

// User is the subject addressing all connections of one user.
func (n Names) User(userID string) string {
	return n.hub + ".user." + userID
}

// GroupManagement is the subject carrying group membership commands.
func (n Names) GroupManagement() string {
	return n.hub + ".groupmgmt"
}
