// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package shelltesting

import (
	"context"
	"strings"
	"sync"

	"github.com/juju/testing"
	gc "gopkg.in/check.v1"

	"github.com/juju/django-charm/internal/shell"
)

// Response is a canned result for a command line.
type Response struct {
	Stdout string
	Stderr string
	Code   int
}

// FakeRunner is a shell.Runner that records every command it is asked to
// run and answers with canned responses. Commands are matched on their
// quoted command line (shell.Command.String) or, failing that, on the
// longest registered prefix of it. Unmatched commands succeed silently.
type FakeRunner struct {
	*testing.Stub

	mu        sync.Mutex
	responses map[string][]Response
}

// NewFakeRunner returns a FakeRunner with no canned responses.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		Stub:      &testing.Stub{},
		responses: make(map[string][]Response),
	}
}

// Respond queues responses for the given command line. Responses are
// handed out in order; the last one is repeated once the queue runs dry.
func (r *FakeRunner) Respond(commandLine string, responses ...Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[commandLine] = append(r.responses[commandLine], responses...)
}

// RespondStdout is a shortcut for a single successful response.
func (r *FakeRunner) RespondStdout(commandLine, stdout string) {
	r.Respond(commandLine, Response{Stdout: stdout})
}

// Run implements shell.Runner.
func (r *FakeRunner) Run(_ context.Context, command shell.Command) (*shell.Result, error) {
	r.MethodCall(r, "Run", command)
	if err := r.NextErr(); err != nil {
		return nil, err
	}
	resp := r.next(command.String())
	return &shell.Result{
		Stdout: []byte(resp.Stdout),
		Stderr: []byte(resp.Stderr),
		Code:   resp.Code,
	}, nil
}

func (r *FakeRunner) next(line string) Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := line
	queue, ok := r.responses[line]
	if !ok {
		key = ""
		for prefix := range r.responses {
			if strings.HasPrefix(line, prefix) && len(prefix) > len(key) {
				key = prefix
			}
		}
		if key == "" {
			return Response{}
		}
		queue = r.responses[key]
	}
	if len(queue) == 0 {
		return Response{}
	}
	resp := queue[0]
	if len(queue) > 1 {
		r.responses[key] = queue[1:]
	}
	return resp
}

// Commands returns the command lines run so far, in order.
func (r *FakeRunner) Commands() []string {
	var lines []string
	for _, call := range r.Calls() {
		lines = append(lines, call.Args[0].(shell.Command).String())
	}
	return lines
}

// RunCommands returns the commands run so far, in order.
func (r *FakeRunner) RunCommands() []shell.Command {
	var commands []shell.Command
	for _, call := range r.Calls() {
		commands = append(commands, call.Args[0].(shell.Command))
	}
	return commands
}

// CheckCommands asserts that exactly the given command lines were run.
func (r *FakeRunner) CheckCommands(c *gc.C, expected ...string) {
	c.Check(r.Commands(), gc.DeepEquals, expected)
}
