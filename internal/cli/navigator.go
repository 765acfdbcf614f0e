package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// terminalNavigator prints route changes instead of moving a UI.
type terminalNavigator struct {
	mu     sync.Mutex
	out    io.Writer
	routes chan string
}

func newTerminalNavigator(out io.Writer) *terminalNavigator {
	return &terminalNavigator{out: out, routes: make(chan string, 1)}
}

func (n *terminalNavigator) Replace(route string) error {
	return n.record("replace", route)
}

func (n *terminalNavigator) Push(route string) error {
	return n.record("push", route)
}

func (n *terminalNavigator) record(mode, route string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := fmt.Fprintf(n.out, "navigate (%s): %s\n", mode, route); err != nil {
		return err
	}
	select {
	case n.routes <- route:
	default:
	}
	return nil
}

// wait returns the next route navigated to, or false when ctx ends first.
func (n *terminalNavigator) wait(ctx context.Context) (string, bool) {
	select {
	case route := <-n.routes:
		return route, true
	case <-ctx.Done():
		return "", false
	}
}
