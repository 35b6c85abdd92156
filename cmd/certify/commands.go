// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/luxfi/certify"
	"github.com/luxfi/certify/certifier/api"
	"github.com/luxfi/certify/certifier/healthcheck"
	"github.com/luxfi/certify/certifier/metrics"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var (
	errUnsuccessful = errors.New("operation did not succeed")
	errNotExecuted  = errors.New("certificate data is required")
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the certificate page and JSON API",
		Long: `Connect the configured wallet and serve the certificate page at / and
the JSON API under /api/v1. The server keeps running when no wallet can be
connected; the page then reports the problem.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	if err := a.connect(ctx); err != nil {
		a.logger.Warn(
			"Serving without a wallet session",
			log.Err(err),
		)
	}

	router := api.NewRouter(a.logger, a.metrics, a.controller, map[string]http.Handler{
		"/health":  healthcheck.NewHandler(healthcheck.SessionCheck(a.controller)),
		"/metrics": metrics.Handler(a.registry),
	})
	httpServer := &http.Server{
		Addr:              a.cfg.APIAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errGroup, ctx := errgroup.WithContext(ctx)
	errGroup.Go(func() error {
		a.logger.Info(
			"Serving certificate page",
			log.String("address", a.cfg.APIAddress()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start http server: %w", err)
		}
		return nil
	})
	// Handle graceful shutdown
	errGroup.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return errGroup.Wait()
}

func newIssueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "issue <certificate>",
		Short: "Issue a certificate and wait for the transaction to be included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, certify.OperationIssue, args[0])
		},
	}
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <certificate>",
		Short: "Check whether a certificate has been issued",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, certify.OperationVerify, args[0])
		},
	}
}

// runOperation prints the outcome message of [op] on [input]. Outcomes
// other than success make the command fail.
func runOperation(cmd *cobra.Command, op certify.Operation, input string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	if err := a.connect(ctx); err != nil {
		return err
	}

	var (
		outcome  *certify.Outcome
		executed bool
	)
	switch op {
	case certify.OperationIssue:
		outcome, executed = a.controller.Issue(ctx, input)
	default:
		outcome, executed = a.controller.Verify(ctx, input)
	}
	if !executed {
		return errNotExecuted
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, outcome.Message())
	if outcome.TxHash != (common.Hash{}) {
		fmt.Fprintf(out, "Transaction: %s\n", outcome.TxHash.Hex())
	}
	if outcome.Category() != certify.CategorySuccess {
		return errUnsuccessful
	}
	return nil
}

func newEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <certificate>",
		Short: "Print the 32-byte encoding of a certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, err := certify.EncodeCertificate(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), enc.Hex())
			return nil
		},
	}
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex>",
		Short: "Print the certificate stored in a 32-byte hex value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, err := certify.ParseEncodedCertificate(args[0])
			if err != nil {
				return err
			}
			data, err := certify.DecodeCertificate(enc)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), data)
			return nil
		},
	}
}
