package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tally-network/pollsync/app/syncer"
	"github.com/tally-network/pollsync/app/syncer/types"
	"github.com/tally-network/pollsync/pkg/logging"
	"github.com/tally-network/pollsync/pkg/rpc"
	"github.com/tally-network/pollsync/pkg/store"
	"github.com/tally-network/pollsync/pkg/utils"
)

const usage = `Usage: pollsync <command> [flags]

Commands:
  list     reconcile and print every poll
  get      reconcile and print one poll
  create   submit a poll creation and wait for finality
  vote     submit a vote and wait for finality
  export   print the raw remote records

Environment:
  POLLSYNC_RPC_ENDPOINTS  comma-separated ledger RPC endpoints
  POLLSYNC_STORE_DSN      cache store DSN (default: in-memory)
  POLLSYNC_SIGNER_ADDRESS account address for submissions
  POLLSYNC_SIGNER_KEY     hex-encoded signing key seed
`

func main() {
	// Try to load .env from CWD if present; otherwise use environment as-is
	if _, statErr := os.Stat(".env"); statErr == nil {
		_ = godotenv.Load(".env")
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.New()
	if err != nil {
		panic(err)
	}

	svc := buildService(ctx, logger)
	defer func() { _ = svc.Close() }()

	if err := run(ctx, svc, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "pollsync: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, svc *types.Service, command string, args []string) error {
	switch command {
	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		stale := fs.Bool("stale", false, "include cached rows the ledger could not vouch for")
		_ = fs.Parse(args)
		views, err := svc.ListMergedPolls(ctx, *stale)
		if err != nil {
			return err
		}
		return printJSON(views)

	case "get":
		fs := flag.NewFlagSet("get", flag.ExitOnError)
		id := fs.Uint64("id", 0, "poll identifier")
		_ = fs.Parse(args)
		if *id == 0 {
			return fmt.Errorf("get: -id is required")
		}
		view, err := svc.GetPoll(ctx, *id)
		if err != nil {
			return err
		}
		return printJSON(view)

	case "create":
		fs := flag.NewFlagSet("create", flag.ExitOnError)
		title := fs.String("title", "", "poll title")
		description := fs.String("description", "", "poll description")
		options := fs.String("options", "", "comma-separated option labels")
		duration := fs.Uint64("duration", 0, "voting period in seconds")
		membershipRoot := fs.String("membership-root", "", "hex membership commitment")
		_ = fs.Parse(args)

		result, err := svc.CreatePoll(ctx, types.NewPoll{
			Title:          *title,
			Description:    *description,
			OptionNames:    splitOptions(*options),
			Duration:       *duration,
			MembershipRoot: *membershipRoot,
		})
		if err != nil {
			return err
		}
		if result.PollID == 0 {
			fmt.Fprintln(os.Stderr, "poll created but its id did not resolve; it appears on the next sync")
		}
		return printJSON(result)

	case "vote":
		fs := flag.NewFlagSet("vote", flag.ExitOnError)
		id := fs.Uint64("id", 0, "poll identifier")
		option := fs.Uint("option", 0, "option index, zero-based")
		_ = fs.Parse(args)
		if *id == 0 {
			return fmt.Errorf("vote: -id is required")
		}
		result, err := svc.Vote(ctx, *id, uint32(*option))
		if err != nil {
			return err
		}
		return printJSON(result)

	case "export":
		records, err := svc.Export(ctx)
		if err != nil {
			return err
		}
		return printJSON(records)

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func buildService(ctx context.Context, logger *zap.Logger) *types.Service {
	endpoints := strings.Split(utils.Env("POLLSYNC_RPC_ENDPOINTS", "http://localhost:8545"), ",")
	client := rpc.NewHTTPWithOpts(rpc.Opts{
		Endpoints: utils.Dedup(endpoints),
		Timeout:   utils.EnvDuration("POLLSYNC_RPC_TIMEOUT", 15*time.Second),
	})

	cache, err := store.New(ctx, logger, utils.Env("POLLSYNC_STORE_DSN", ""))
	if err != nil {
		logger.Fatal("Unable to initialize cache store", zap.Error(err))
	}

	return types.NewService(types.ServiceOpts{
		Client: client,
		Store:  cache,
		Signer: syncer.SignerFromEnv(logger),
		Logger: logger,
	})
}

func splitOptions(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
