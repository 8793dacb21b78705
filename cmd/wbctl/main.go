package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/wbclient/internal/admin"
	"github.com/danmuck/wbclient/internal/auth"
	"github.com/danmuck/wbclient/internal/config"
	"github.com/danmuck/wbclient/internal/observability"
	"github.com/danmuck/wbclient/internal/session"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

var errUsage = errors.New("wbctl: usage")

type options struct {
	configPath string
	url        string
	codec      string
	adminAddr  string
	timeout    time.Duration
	unique     bool
	count      int
}

func main() {
	observability.InitLogger("wbctl")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "wbctl: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("wbctl", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "client config file (TOML)")
	flagSet.StringVar(&opts.url, "url", "", "server endpoint, e.g. ws://localhost:8080/ws (overrides config)")
	flagSet.StringVar(&opts.codec, "codec", "", "wire codec: json|cbor (overrides config)")
	flagSet.StringVar(&opts.adminAddr, "admin-addr", "", "serve /health, /stats and /metrics on this address")
	flagSet.DurationVar(&opts.timeout, "timeout", 10*time.Second, "how long request commands wait for the answer")
	flagSet.BoolVar(&opts.unique, "unique", false, "subscriptions skip events whose value did not change")
	flagSet.IntVarP(&opts.count, "count", "n", 0, "stream commands exit after this many events (0 = until interrupted)")
	flagSet.SortFlags = false

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stderr, flagSet)
			return nil
		}
		return err
	}
	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(stderr, flagSet)
		return errUsage
	}

	if rest[0] == "config" {
		return runConfig(stdout, opts, rest[1:])
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		printHelp(stderr, flagSet)
		return fmt.Errorf("%w: unknown command %q", errUsage, rest[0])
	}
	if err := cmd.checkArgs(rest[1:]); err != nil {
		fmt.Fprintf(stderr, "usage: wbctl %s %s\n", cmd.name, cmd.usage)
		return err
	}

	client, err := loadClient(opts)
	if err != nil {
		return err
	}
	sessCfg, err := client.SessionConfig(nil)
	if err != nil {
		return err
	}
	s, err := session.Connect(ctx, sessCfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	cmdCtx, stopAdmin := context.WithCancel(gctx)
	defer stopAdmin()
	if client.AdminAddr != "" {
		var guard auth.Validator
		if client.AdminToken != "" {
			guard = auth.SharedToken(client.AdminToken)
		}
		srv := admin.New(client.Name, client.AdminAddr, client.CorsOrigins, s, guard)
		g.Go(func() error { return srv.Serve(cmdCtx) })
	}
	g.Go(func() error {
		defer stopAdmin()
		return cmd.run(cmdCtx, s, stdout, opts, rest[1:])
	})
	return g.Wait()
}

// loadClient resolves the client config: file (or env-only defaults), then flags.
func loadClient(opts options) (config.Client, error) {
	var (
		client config.Client
		err    error
	)
	if opts.configPath != "" {
		client, err = config.Load(opts.configPath)
	} else {
		client, err = config.FromEnv()
	}
	if err != nil {
		return config.Client{}, err
	}
	if opts.url != "" {
		client.URL = opts.url
	}
	if opts.codec != "" {
		client.Codec = opts.codec
	}
	if opts.adminAddr != "" {
		client.AdminAddr = opts.adminAddr
	}
	if err := client.Validate(); err != nil {
		return config.Client{}, err
	}
	return client, nil
}

func runConfig(stdout io.Writer, opts options, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: config needs init|show", errUsage)
	}
	switch args[0] {
	case "init":
		path := "wbctl.toml"
		if len(args) > 1 {
			path = args[1]
		}
		if err := config.WriteTemplate(path, false); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\n", path)
		return nil
	case "show":
		client, err := loadClient(opts)
		if err != nil {
			return err
		}
		data, err := config.Render(client)
		if err != nil {
			return err
		}
		_, err = stdout.Write(data)
		return err
	default:
		return fmt.Errorf("%w: unknown config command %q", errUsage, args[0])
	}
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `wbctl talks to a worterbuch server over one session.

Usage:
  wbctl [flags] <command> [args]

Request commands print the answer and exit:
`)
	for _, name := range commandOrder {
		cmd := commands[name]
		if !cmd.stream {
			fmt.Fprintf(w, "  %-11s %-15s %s\n", cmd.name, cmd.usage, cmd.summary)
		}
	}
	fmt.Fprintf(w, "\nStream commands print events until interrupted or --count is reached:\n")
	for _, name := range commandOrder {
		cmd := commands[name]
		if cmd.stream {
			fmt.Fprintf(w, "  %-11s %-15s %s\n", cmd.name, cmd.usage, cmd.summary)
		}
	}
	fmt.Fprintf(w, `
Config:
  config init [path]          write a default config file
  config show                 print the resolved config

Flags:
%s`, flagSet.FlagUsages())
}
