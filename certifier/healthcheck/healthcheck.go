// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alexliesenfeld/health"
	"github.com/luxfi/certify"
)

const checkTimeout = 5 * time.Second

var ErrNotConnected = errors.New("no wallet session established")

func NewHandler(checkFunc func(context.Context) error) http.Handler {
	healthChecker := health.NewChecker(
		health.WithCacheDuration(time.Second),
		health.WithTimeout(checkTimeout),
		health.WithCheck(health.Check{
			Name:  "certify-health",
			Check: checkFunc,
		}),
	)
	return health.NewHandler(healthChecker)
}

// SessionCheck reports healthy once [controller] holds a session whose
// ledger endpoint answers.
func SessionCheck(controller *certify.Controller) func(context.Context) error {
	return func(ctx context.Context) error {
		session := controller.Session()
		if session == nil {
			if err := controller.InitError(); err != nil {
				return fmt.Errorf("%w: %w", ErrNotConnected, err)
			}
			return ErrNotConnected
		}
		// In-process sessions have no ledger endpoint.
		if session.Client() == nil {
			return nil
		}
		if _, err := session.Client().ChainID(ctx); err != nil {
			return fmt.Errorf("ledger endpoint unreachable: %w", err)
		}
		return nil
	}
}
