// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package fabric

import (
	"context"

	"github.com/juju/errors"
)

// DialFunc connects to a host.
type DialFunc func(ctx context.Context, address string) (Remote, error)

// SSHDialer returns a DialFunc logging in with config.
func SSHDialer(config DialConfig) DialFunc {
	return func(ctx context.Context, address string) (Remote, error) {
		return Dial(ctx, address, config)
	}
}

// Executor runs tasks against hosts, one host at a time.
type Executor struct {
	Dial DialFunc
}

// Run runs task on every host in order. It stops at the first failure.
func (e *Executor) Run(ctx context.Context, hosts []string, task Task) error {
	if len(hosts) == 0 {
		return errors.NotValidf("empty host list")
	}
	for _, address := range hosts {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
		if err := e.runOne(ctx, address, task); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (e *Executor) runOne(ctx context.Context, address string, task Task) error {
	logger.Infof("[%s] executing task", address)
	host, err := e.Dial(ctx, address)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if err := host.Close(); err != nil {
			logger.Warningf("[%s] closing connection: %v", address, err)
		}
	}()
	return errors.Trace(task(ctx, host))
}
