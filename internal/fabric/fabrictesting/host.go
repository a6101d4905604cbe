// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package fabrictesting

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/juju/django-charm/internal/fabric"
	"github.com/juju/django-charm/internal/shell/shelltesting"
)

// FakeHost is a fabric.Remote that records commands with a FakeRunner
// and keeps appended files in memory.
type FakeHost struct {
	*shelltesting.FakeRunner

	address string

	mu     sync.Mutex
	files  map[string]string
	modes  map[string]os.FileMode
	closed bool
}

// NewFakeHost returns a FakeHost for address.
func NewFakeHost(address string) *FakeHost {
	return &FakeHost{
		FakeRunner: shelltesting.NewFakeRunner(),
		address:    address,
		files:      make(map[string]string),
		modes:      make(map[string]os.FileMode),
	}
}

// Address implements fabric.Remote.
func (h *FakeHost) Address() string {
	return h.address
}

// Append implements fabric.Remote.
func (h *FakeHost) Append(path, content string, mode os.FileMode) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	existing, ok := h.files[path]
	if strings.Contains(existing, strings.TrimRight(content, "\n")) {
		return false, nil
	}
	if existing != "" && !strings.HasSuffix(existing, "\n") {
		existing += "\n"
	}
	h.files[path] = existing + strings.TrimRight(content, "\n") + "\n"
	if !ok {
		h.modes[path] = mode
	}
	return true, nil
}

// File returns the content appended to path.
func (h *FakeHost) File(path string) (string, os.FileMode, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	content, ok := h.files[path]
	return content, h.modes[path], ok
}

// Close implements fabric.Remote.
func (h *FakeHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// Closed reports whether Close was called.
func (h *FakeHost) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Dialer returns a fabric.DialFunc handing out the given hosts by
// address. Unknown addresses get a fresh FakeHost, recorded in hosts.
func Dialer(hosts map[string]*FakeHost) fabric.DialFunc {
	var mu sync.Mutex
	return func(_ context.Context, address string) (fabric.Remote, error) {
		mu.Lock()
		defer mu.Unlock()
		host, ok := hosts[address]
		if !ok {
			host = NewFakeHost(address)
			hosts[address] = host
		}
		return host, nil
	}
}
