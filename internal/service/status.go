package service

import "github.com/tandoor-pos/api/internal/enum"

// The status machine is a progression pending → confirmed → preparing
// → ready → served → completed, with cancelled reachable from any
// non-terminal state. Non-terminal states may also move among each
// other (kitchens do walk orders backwards), so the only hard rule is
// that completed and cancelled are terminal.

var validStatuses = map[string]bool{
	enum.OrderStatusPending:   true,
	enum.OrderStatusConfirmed: true,
	enum.OrderStatusPreparing: true,
	enum.OrderStatusReady:     true,
	enum.OrderStatusServed:    true,
	enum.OrderStatusCompleted: true,
	enum.OrderStatusCancelled: true,
}

func isValidStatus(s string) bool { return validStatuses[s] }

func isTerminalStatus(s string) bool {
	return s == enum.OrderStatusCompleted || s == enum.OrderStatusCancelled
}

// ensureNotTerminal rejects any transition out of a closed order.
// That is the only pairwise rule; unknown target values must be
// rejected by the caller before any mutation.
func ensureNotTerminal(current string) error {
	if isTerminalStatus(current) {
		return ErrOrderClosed
	}
	return nil
}
