// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

// MethodHandler implements one interface member on an object path. It
// returns the method-return (or method-error) message to send back.
type MethodHandler func(msg *Message) *Message

// objectNode is one path's vtable (spec §3 ObjectNode): per-interface,
// per-member method callbacks. Property vtables and enumerator hooks are
// represented at interface level only (spec §1, "full object-vtable
// hosting is specified at interface level only").
type objectNode struct {
	path    string
	methods map[string]map[string]MethodHandler
}

// objectTree is the Connection's path-keyed vtable tree (spec §4.6 step f).
type objectTree struct {
	nodes map[string]*objectNode
}

func newObjectTree() *objectTree {
	return &objectTree{nodes: make(map[string]*objectNode)}
}

// AddMethod installs handler for iface.member on path, creating the path
// node if necessary.
func (t *objectTree) AddMethod(path, iface, member string, handler MethodHandler) {
	node, ok := t.nodes[path]
	if !ok {
		node = &objectNode{path: path, methods: make(map[string]map[string]MethodHandler)}
		t.nodes[path] = node
	}
	members, ok := node.methods[iface]
	if !ok {
		members = make(map[string]MethodHandler)
		node.methods[iface] = members
	}
	members[member] = handler
}

// RemoveNode unregisters every handler on path.
func (t *objectTree) RemoveNode(path string) {
	delete(t.nodes, path)
}

// Dispatch looks up msg's path/interface/member and runs the installed
// handler. handled is false only when path itself has no registered
// node, so the caller (the dispatcher's builtin/object step) knows to
// reply with UnknownObject rather than UnknownMethod.
func (t *objectTree) Dispatch(msg *Message) (reply *Message, handled bool) {
	node, ok := t.nodes[msg.Path]
	if !ok {
		return nil, false
	}
	members := node.methods[msg.Interface]
	handler, ok := members[msg.Member]
	if !ok {
		return NewMethodError(msg, ErrorNameUnknownMethod, "No such method"), true
	}
	return handler(msg), true
}
