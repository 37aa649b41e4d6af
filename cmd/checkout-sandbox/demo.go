package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/aussiebroadwan/checkout/internal/sandbox/app"
	"github.com/aussiebroadwan/checkout/internal/sandbox/gateway"
	"github.com/aussiebroadwan/checkout/pkg/checkout"
	"github.com/aussiebroadwan/checkout/pkg/checkoutsdk"
	"github.com/aussiebroadwan/checkout/pkg/duplex"
	"github.com/aussiebroadwan/checkout/pkg/slogx"
	"github.com/aussiebroadwan/checkout/pkg/threeds"
	"github.com/spf13/cobra"
)

type demoOptions struct {
	baseURL  string
	key      string
	amount   float64
	currency string
	token    string
	expiry   string
	outcome  string
	logLevel string
	ipify    bool
}

func demoCmd() *cobra.Command {
	var opts demoOptions

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run one checkout against a running sandbox",
		Long: `Run one checkout against a running sandbox and print the outcome.

The last two digits of the minor amount pick the scenario:
  10.00  frictionless, approved
  10.02  challenge
  10.03  not authenticated
  10.05  declined

A challenge answered with --outcome N closes the ACS frame, so the run
settles as closed rather than waiting for the challenge timeout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runDemo(ctx, cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.baseURL, "url", "http://localhost:8080", "sandbox base URL")
	f.StringVar(&opts.key, "key", "pk_sandbox", "merchant public key")
	f.Float64Var(&opts.amount, "amount", 10.00, "amount in major units")
	f.StringVar(&opts.currency, "currency", "826", "ISO 4217 numeric currency code")
	f.StringVar(&opts.token, "token", "tok_4242424242", "card token id")
	f.StringVar(&opts.expiry, "expiry", "12/30", "card expiry MM/YY")
	f.StringVar(&opts.outcome, "outcome", "Y", "challenge answer (Y or N)")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level")
	f.BoolVar(&opts.ipify, "ipify", false, "look up the source IP with ipify instead of the sandbox")

	return cmd
}

func runDemo(ctx context.Context, cmd *cobra.Command, opts demoOptions) error {
	logger := slogx.New(slogx.Config{
		Service: "checkout-demo",
		Version: app.BuildVersion,
		Env:     "dev",
		Level:   opts.logLevel,
		Format:  "pretty",
		Output:  cmd.ErrOrStderr(),
	})

	base := strings.TrimSuffix(opts.baseURL, "/")
	env := checkoutsdk.Environment{
		Name:    "sandbox",
		APIBase: base,
		WSBase:  app.Config{PublicURL: base}.WSURL(),
	}

	api := checkoutsdk.NewClientForEnvironment(env, opts.key)
	api.Logger = slogx.Named(logger, "api")
	if err := api.Ping(ctx); err != nil {
		return fmt.Errorf("sandbox not reachable at %s: %w", base, err)
	}

	// The sandbox answers lookups itself; --ipify uses the public service.
	sourceIP := &checkoutsdk.IPLookup{Endpoints: []string{base + "/ip"}}
	if opts.ipify {
		sourceIP = checkoutsdk.NewIPLookup()
	}

	report := func(label string) checkout.HookFunc {
		return func(_ context.Context, cc checkout.CompletionContext, _ *checkout.Helpers) (*checkout.Redirect, error) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: session=%s 3ds=%s\n", label, cc.SessionID, cc.Auth.Kind())
			if cc.Classification != nil {
				fmt.Fprintf(out, "  payment=%s reason=%s auth_code=%s message=%q\n",
					cc.Classification.Status, cc.Classification.Reason, cc.Classification.AuthCode, cc.Classification.Message)
			}
			return nil, nil
		}
	}

	cfg := checkout.Config{
		Transaction: threeds.Transaction{
			Amount:      &checkoutsdk.Amount{Value: opts.amount, CurrencyCode: opts.currency},
			Cardholder:  &checkoutsdk.Cardholder{Name: "Sandbox Shopper", Email: "shopper@example.com"},
			Description: "Sandbox demo",
		},
		PageURL: base + "/demo",
		Completion: checkout.CompletionOptions{
			Mode:      checkout.ModeClient,
			OnSuccess: checkout.HookOf(report("approved")),
			OnError:   checkout.HookOf(report("not approved")),
		},
		Challenge: checkout.ChallengeOptions{
			HardTimeout: 30 * time.Second,
		},
	}

	c, err := checkout.New(cfg, checkout.Dependencies{
		Gateway:  api,
		Capture:  checkout.StaticCapture{Token: opts.token, Expiry: opts.expiry},
		Sessions: checkout.NewCreatedSession(api, 0),
		Channels: checkout.NewDuplexOpener(env,
			duplex.WithLogger(slogx.Named(logger, "duplex")),
			duplex.WithRedactKeys("cReq", "threeDSMethodData"),
		),
		MethodSubmitter: &threeds.HTTPMethodSubmitter{Logger: slogx.Named(logger, "method")},
		Renderer:        &gateway.Shopper{Outcome: opts.outcome, Logger: slogx.Named(logger, "shopper")},
		SourceIP:        sourceIP.SourceIP,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	out, err := c.RunOnce(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "outcome: %s", out.Status)
	if out.Message != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " (%s)", out.Message)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return err
}
