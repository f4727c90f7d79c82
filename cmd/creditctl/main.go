// Command creditctl inspects and drives the local credit client state:
// balance, identity, the offline queue and the billing endpoint.
//
// Usage:
//
//	creditctl [flags] <command> [args]
//
// Environment overrides (CREDITS_API_BASE, CREDITS_OFFLINE, CREDITS_BYPASS
// and their legacy PAYWALL_* names) are read after loading a .env file from
// the working directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	_ "github.com/joho/godotenv/autoload"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"

	"github.com/xraph/credits"
	"github.com/xraph/credits/paywall"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/file"
	"github.com/xraph/credits/store/sqlite"
)

type options struct {
	driver  string
	path    string
	apiBase string
	offline bool
	bypass  bool
	timeout time.Duration
	verbose bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := flag.NewFlagSet("creditctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.driver, "store", "file", "local store backend: file or sqlite")
	fs.StringVar(&opts.path, "path", "", "store location (default: per-user config dir)")
	fs.StringVar(&opts.apiBase, "api", "", "billing service root URL override")
	fs.BoolVar(&opts.offline, "offline", false, "approve charges locally while the service is unreachable")
	fs.BoolVar(&opts.bypass, "bypass", false, "skip charging entirely")
	fs.DurationVar(&opts.timeout, "timeout", credits.DefaultTimeout, "billing request timeout")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	fs.Usage = func() { usage(fs) }

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		usage(fs)
		return 2
	}

	setupLogging(stderr, opts.verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	st, err := openStore(ctx, opts)
	if err != nil {
		return fail(stderr, err)
	}

	cfg := credits.DefaultConfig()
	cfg.APIBase = opts.apiBase
	cfg.Offline = opts.offline
	cfg.Bypass = opts.bypass
	cfg.Timeout = opts.timeout
	cfg = credits.ConfigFromEnv(cfg)

	l := credits.New(st, credits.WithConfig(cfg))
	if err := l.Start(ctx); err != nil {
		return fail(stderr, err)
	}
	defer l.Stop() //nolint:errcheck // best-effort close on exit

	c := &cli{ledger: l, gate: paywall.New(l), out: stdout}
	if err := c.dispatch(ctx, fs.Arg(0), fs.Args()[1:]); err != nil {
		return fail(stderr, err)
	}
	return 0
}

// fail prints err and returns the exit code: 2 for usage errors, else 1.
func fail(w io.Writer, err error) int {
	fmt.Fprintln(w, color.RedString("error:"), err)
	if errors.Is(err, errUsage) {
		return 2
	}
	return 1
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, "usage: creditctl [flags] <command> [args]")
	fmt.Fprintln(w, `
commands:
  status                  identity, endpoint, cached balance and queue
  balance                 fetch the authoritative balance (falls back to cache)
  consume <action> <cost> charge an action
  checkout                open a checkout session and print its URL
  wait [min-paid] [timeout]
                          poll until paid credits reach min-paid (default 1)
  sync                    replay the offline queue
  reconcile               compare the server balance with local state
  reset                   forget the subject and access token
  set-api-base <url>      persist the billing endpoint
  pending list            list queued consumptions
  pending drop <id>       discard a queued consumption

flags:`)
	fs.PrintDefaults()
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.Stamp}
	log := zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: level}),
	))
}

func openStore(ctx context.Context, opts options) (store.Store, error) {
	path := opts.path
	if path == "" {
		def, err := file.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = def
		if opts.driver == "sqlite" {
			path = filepath.Join(filepath.Dir(def), "credits.db")
		}
	}

	switch opts.driver {
	case "file":
		return file.New(path), nil
	case "sqlite":
		return sqlite.Open(ctx, path)
	default:
		return nil, fmt.Errorf("%w: unknown store %q", errUsage, opts.driver)
	}
}

// ──────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────

var errUsage = errors.New("usage")

type cli struct {
	ledger *credits.Ledger
	gate   *paywall.Gate
	out    io.Writer
}

func (c *cli) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "status":
		return c.status(ctx)
	case "balance":
		return c.balance(ctx)
	case "consume":
		return c.consume(ctx, args)
	case "checkout":
		return c.checkout(ctx)
	case "wait":
		return c.wait(ctx, args)
	case "sync":
		return c.sync(ctx)
	case "reconcile":
		return c.reconcile(ctx)
	case "reset":
		return c.reset(ctx)
	case "set-api-base":
		return c.setAPIBase(ctx, args)
	case "pending":
		return c.pending(ctx, args)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (c *cli) status(ctx context.Context) error {
	deviceID, err := c.ledger.EnsureDeviceID(ctx)
	if err != nil {
		return err
	}
	ident, err := c.ledger.GetIdentity(ctx)
	if err != nil {
		return err
	}
	base, err := c.ledger.APIBase(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "device:    %s\n", deviceID)
	if ident.Registered() {
		fmt.Fprintf(c.out, "subject:   %s\n", ident.ShortSubject())
	} else {
		fmt.Fprintf(c.out, "subject:   %s\n", color.YellowString("not registered"))
	}
	if base == "" {
		fmt.Fprintf(c.out, "endpoint:  %s\n", color.YellowString("not configured"))
	} else {
		fmt.Fprintf(c.out, "endpoint:  %s\n", base)
	}
	fmt.Fprintf(c.out, "offline:   %t\n", c.ledger.IsOfflineEnabled())
	if c.ledger.IsBypassEnabled() {
		fmt.Fprintf(c.out, "bypass:    %s\n", color.MagentaString("on"))
	}

	b, ok, err := c.ledger.CachedBalance(ctx)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintf(c.out, "cached:    %s\n", renderBalance(b))
	} else {
		fmt.Fprintf(c.out, "cached:    %s\n", color.YellowString("none"))
	}

	queued, err := c.ledger.PendingTotal(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "pending:   %d\n", queued)
	return nil
}

func (c *cli) balance(ctx context.Context) error {
	b, err := c.ledger.GetBalance(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, renderBalance(b))
	return nil
}

func (c *cli) consume(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: consume <action> <cost>", errUsage)
	}
	cost, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: cost must be an integer", errUsage)
	}

	d := c.gate.EnsureCredit(ctx, args[0], cost)
	switch {
	case d.Bypass:
		fmt.Fprintln(c.out, color.MagentaString("bypass: not charged"))
	case d.OK:
		fmt.Fprintf(c.out, "%s %s\n", color.GreenString("charged"), renderBalance(d.Balance))
	case d.NeedsPayment():
		fmt.Fprintln(c.out, color.RedString("payment required"))
		fmt.Fprintf(c.out, "checkout:  %s\n", d.CheckoutURL)
		return d.Err
	default:
		return d.Err
	}
	return nil
}

func (c *cli) checkout(ctx context.Context) error {
	url, err := c.ledger.Checkout(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, url)
	return nil
}

func (c *cli) wait(ctx context.Context, args []string) error {
	minPaid := int64(1)
	timeout := c.ledger.Config().WaitTimeout
	if len(args) > 0 {
		n, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: min-paid must be an integer", errUsage)
		}
		minPaid = n
	}
	if len(args) > 1 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("%w: timeout must be a duration", errUsage)
		}
		timeout = d
	}

	b, err := c.ledger.WaitForBalance(ctx, minPaid, timeout)
	if err != nil {
		return err
	}
	if b.PaidCredits >= minPaid {
		fmt.Fprintf(c.out, "%s %s\n", color.GreenString("paid"), renderBalance(b))
		return nil
	}
	fmt.Fprintf(c.out, "%s %s\n", color.YellowString("timed out"), renderBalance(b))
	return nil
}

func (c *cli) sync(ctx context.Context) error {
	report, err := c.ledger.SyncPending(ctx)
	if err != nil {
		return err
	}
	line := report.String()
	if report.Clean() {
		fmt.Fprintln(c.out, color.GreenString(line))
	} else {
		fmt.Fprintln(c.out, color.YellowString(line))
	}
	return nil
}

func (c *cli) reconcile(ctx context.Context) error {
	if _, err := c.ledger.SyncPending(ctx); err != nil {
		fmt.Fprintln(c.out, color.YellowString("sync incomplete: %v", err))
	}
	r, err := c.ledger.Reconcile(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "server:    %s\n", renderBalance(r.Server))
	if !r.HasCached {
		fmt.Fprintf(c.out, "cached:    %s\n", color.YellowString("none"))
		return nil
	}
	fmt.Fprintf(c.out, "cached:    %s\n", renderBalance(r.Cached))
	fmt.Fprintf(c.out, "pending:   %d\n", r.Pending)
	if r.Discrepancy {
		fmt.Fprintln(c.out, color.RedString("discrepancy: server total %d, expected %d",
			r.Server.Total(), r.Expected()))
		return nil
	}
	fmt.Fprintln(c.out, color.GreenString("in sync"))
	return nil
}

func (c *cli) reset(ctx context.Context) error {
	if err := c.ledger.ResetIdentity(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "identity reset")
	return nil
}

func (c *cli) setAPIBase(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: set-api-base <url>", errUsage)
	}
	if err := c.ledger.SetAPIBase(ctx, args[0]); err != nil {
		return err
	}
	base, err := c.ledger.APIBase(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "endpoint: %s\n", base)
	return nil
}

func (c *cli) pending(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: pending list | pending drop <id>", errUsage)
	}
	switch args[0] {
	case "list":
		items, err := c.ledger.PendingConsumptions(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Fprintln(c.out, "queue empty")
			return nil
		}
		for _, item := range items {
			fmt.Fprintf(c.out, "%s  %-24s %4d  %s\n",
				item.ID, item.Action, item.Cost, item.CreatedAt.Local().Format(time.DateTime))
		}
		return nil

	case "drop":
		if len(args) != 2 {
			return fmt.Errorf("%w: pending drop <id>", errUsage)
		}
		cid := strings.TrimSpace(args[1])
		if cid == "" {
			return fmt.Errorf("%w: pending drop <id>", errUsage)
		}
		if err := c.ledger.DropPending(ctx, cid); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "dropped", cid)
		return nil

	default:
		return fmt.Errorf("%w: unknown pending command %q", errUsage, args[0])
	}
}

func renderBalance(b credits.Balance) string {
	total := strconv.FormatInt(b.Total(), 10)
	switch {
	case b.Total() == 0:
		total = color.RedString(total)
	case b.PaidCredits > 0:
		total = color.GreenString(total)
	}
	return fmt.Sprintf("%s credits (free %d, paid %d)", total, b.FreeRemaining, b.PaidCredits)
}
