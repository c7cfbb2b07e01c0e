package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/monzo-export/internal/auth"
	"github.com/dvloznov/monzo-export/internal/config"
	"github.com/dvloznov/monzo-export/internal/export"
	infraBQ "github.com/dvloznov/monzo-export/internal/infra/bigquery"
	"github.com/dvloznov/monzo-export/internal/logger"
	"github.com/dvloznov/monzo-export/internal/monzo"
	"github.com/dvloznov/monzo-export/internal/pipeline"
	"github.com/dvloznov/monzo-export/internal/storage"
	"github.com/rs/zerolog"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitAuth        = 2
	exitUnavailable = 3
)

var errNotLoggedIn = fmt.Errorf("no stored access token, run 'cli login' first: %w", auth.ErrAuthentication)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitFailure)
	}

	cfg, err := config.Load(os.Getenv)
	if err != nil {
		log := logger.New()
		log.Error().Err(err).Msg("Invalid configuration")
		os.Exit(exitFailure)
	}
	log := logger.NewWithLevel(cfg.LogLevel)

	switch os.Args[1] {
	case "login":
		err = runLogin(log, cfg, os.Args[2:])
	case "export":
		err = runExport(log, cfg, os.Args[2:])
	case "inspect":
		err = runInspect(log, cfg, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(exitFailure)
	}

	if err != nil {
		log.Error().Err(err).Msgf("%s failed", os.Args[1])
	}
	os.Exit(exitCode(err))
}

func printUsage() {
	fmt.Println("Monzo Export CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  login     Authorize access to Monzo and save the tokens")
	fmt.Println("  export    Fetch accounts and transactions and merge them into storage")
	fmt.Println("  inspect   Show the stored tables and their row counts")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// exitCode maps a command error to the process exit status. Authentication
// failures take precedence over service availability.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, auth.ErrStateMismatch),
		errors.Is(err, auth.ErrAuthentication),
		errors.Is(err, monzo.ErrUnauthorized):
		return exitAuth
	case errors.Is(err, monzo.ErrServiceUnavailable),
		errors.Is(err, auth.ErrServiceUnavailable):
		return exitUnavailable
	default:
		return exitFailure
	}
}

func runLogin(log zerolog.Logger, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	listen := fs.String("listen", "", "Capture the redirect on a local server at this address (e.g. 127.0.0.1:8080) instead of pasting it")
	timeout := fs.Duration("timeout", 10*time.Minute, "How long to wait for approval")
	fs.Parse(args)

	if err := cfg.RequireClient(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	conf := auth.NewOAuthConfig(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURL)
	store := auth.NewDotenvStore(cfg.EnvFile, os.Getenv)

	src := pasteRedirect
	if *listen != "" {
		src = callbackRedirect(log, *listen, cfg.RedirectURL)
	}

	creds, err := auth.Login(ctx, conf, store, src)
	if err != nil {
		return err
	}

	client := monzo.NewClient(auth.HTTPClient(ctx, conf, store, creds))
	who, err := client.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("verifying token: %w", err)
	}

	log.Info().Str("user_id", who.UserID).Bool("authenticated", who.Authenticated).Msg("Logged in")
	fmt.Printf("Tokens saved to %s.\n", cfg.EnvFile)
	if !who.Authenticated {
		fmt.Println("Approve the login in the Monzo app before running export.")
	}
	return nil
}

// pasteRedirect prints the authorization URL and reads the redirect URL the
// user copies back from the browser.
func pasteRedirect(ctx context.Context, authURL string) (string, error) {
	fmt.Println("Open this URL in a browser and approve access:")
	fmt.Println()
	fmt.Println("  " + authURL)
	fmt.Println()
	fmt.Print("Paste the URL you were redirected to: ")

	lines := make(chan string, 1)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		if sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
		close(lines)
	}()

	select {
	case line, ok := <-lines:
		if !ok || line == "" {
			return "", errors.New("no redirect URL entered")
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// callbackRedirect serves the path of redirectURL on addr and waits for the
// browser to arrive there.
func callbackRedirect(log zerolog.Logger, addr, redirectURL string) auth.RedirectSource {
	return func(ctx context.Context, authURL string) (string, error) {
		u, err := url.Parse(redirectURL)
		if err != nil {
			return "", fmt.Errorf("parsing REDIRECT_URL: %w", err)
		}

		srv, err := auth.NewCallbackServer(addr, u.Path, log)
		if err != nil {
			return "", err
		}

		log.Info().Str("addr", srv.Addr()).Str("path", u.Path).Msg("Waiting for the OAuth redirect")
		fmt.Println("Open this URL in a browser and approve access:")
		fmt.Println()
		fmt.Println("  " + authURL)
		fmt.Println()
		return srv.Wait(ctx)
	}
}

func runExport(log zerolog.Logger, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	sinceStr := fs.String("since", "", "Fetch transactions created on or after this date (YYYY-MM-DD); defaults to SINCE_DAYS ago")
	dryRun := fs.Bool("dry-run", false, "Fetch and reconcile without writing anything")
	publish := fs.Bool("publish", false, "Mirror the stored tables into BigQuery after the export")
	timeout := fs.Duration("timeout", 15*time.Minute, "Overall time limit")
	fs.Parse(args)

	now := time.Now().UTC()
	since := now.AddDate(0, 0, -cfg.SinceDays)
	if *sinceStr != "" {
		t, err := time.Parse("2006-01-02", *sinceStr)
		if err != nil {
			return fmt.Errorf("invalid -since %q, expected YYYY-MM-DD: %w", *sinceStr, err)
		}
		since = t
	}

	if err := cfg.RequireClient(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store := auth.NewDotenvStore(cfg.EnvFile, os.Getenv)
	creds, err := store.Load()
	if err != nil {
		return err
	}
	if !creds.HasToken() {
		return errNotLoggedIn
	}
	conf := auth.NewOAuthConfig(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURL)
	client := monzo.NewClient(auth.HTTPClient(ctx, conf, store, creds))

	backend, closeBackend, err := storage.Open(ctx, cfg.StorageKind, cfg.StorageRoot)
	if err != nil {
		return err
	}
	defer closeBackend()

	deps := pipeline.Deps{
		API:          client,
		Backend:      backend,
		Format:       cfg.Format,
		AccountTypes: cfg.AccountTypes,
		DryRun:       *dryRun,
	}

	if *publish {
		if !cfg.BigQueryEnabled() {
			return fmt.Errorf("-publish needs BIGQUERY_PROJECT and BIGQUERY_DATASET: %w", config.ErrMissing)
		}
		pub, err := infraBQ.NewBigQueryPublisher(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			return err
		}
		defer pub.Close()
		deps.Publisher = pub
	}

	state, err := pipeline.Run(ctx, deps, since, now)
	if err != nil {
		return err
	}

	for _, r := range state.Results {
		status := "written"
		if !r.Written {
			status = "not written (dry run)"
		}
		fmt.Printf("%-13s %6d rows  (%d stored + %d fetched)  %s  %s\n",
			r.Entity, r.Persisted, r.Existing, r.Fetched, r.Location, status)
	}
	if len(state.Published) > 0 {
		fmt.Printf("Published to BigQuery: %s\n", strings.Join(state.Published, ", "))
	}
	return nil
}

func runInspect(log zerolog.Logger, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	withBQ := fs.Bool("bigquery", true, "Also show BigQuery row counts when BigQuery is configured")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	backend, closeBackend, err := storage.Open(ctx, cfg.StorageKind, cfg.StorageRoot)
	if err != nil {
		return err
	}
	defer closeBackend()

	inv, err := export.Inspect(ctx, backend, cfg.Format)
	if err != nil {
		return err
	}

	var pub *infraBQ.BigQueryPublisher
	if *withBQ && cfg.BigQueryEnabled() {
		pub, err = infraBQ.NewBigQueryPublisher(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			return err
		}
		defer pub.Close()
	}

	fmt.Printf("Storage: %s %s (%s)\n\n", cfg.StorageKind, cfg.StorageRoot, cfg.Format.Name())
	for _, t := range inv.Tables {
		if !t.Exists {
			fmt.Printf("%-13s  (not exported yet)  %s\n", t.Entity, t.Location)
			continue
		}
		line := fmt.Sprintf("%-13s %6d rows  %8d bytes  %s  %s",
			t.Entity, t.Rows, t.Size, t.Updated.Local().Format("2006-01-02 15:04"), t.Location)
		if pub != nil {
			n, err := pub.RowCount(ctx, t.Entity)
			if err != nil {
				log.Warn().Err(err).Str("entity", t.Entity).Msg("Could not count BigQuery rows")
				line += "  bigquery: ?"
			} else {
				line += fmt.Sprintf("  bigquery: %d", n)
			}
		}
		fmt.Println(line)
	}

	if len(inv.Stray) > 0 {
		fmt.Println("\nOther files under the storage root:")
		for _, o := range inv.Stray {
			fmt.Printf("  %s (%d bytes)\n", o.Name, o.Size)
		}
	}
	return nil
}
