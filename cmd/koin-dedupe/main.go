package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"koin/internal/cli"
	"koin/internal/dedupe"
	"koin/internal/log"
)

func main() {
	users := flag.String("user", "", "comma separated user ids to repair (required)")
	dryRun := flag.Bool("dry-run", false, "print the plan without writing")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	ids := cli.SplitList(*users)
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "Error: -user is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg := cli.LoadAndValidateConfig(logger)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res := cli.InitBackend(ctx, logger, cfg)
	defer res.Cleanup()

	repairer := dedupe.NewRepairer(res.Store, logger)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	failed := 0
	for _, userID := range ids {
		var out any
		var err error
		if *dryRun {
			var plan dedupe.Plan
			plan, err = repairer.Preview(ctx, userID)
			out = map[string]any{
				"user_id":                   userID,
				"dry_run":                   true,
				"groups":                    plan.Groups,
				"deleted_category_ids":      plan.DeletedCategoryIDs(),
				"rewritten_transaction_ids": plan.RewrittenTransactionIDs(),
			}
		} else {
			var r dedupe.Result
			r, err = repairer.Repair(ctx, userID)
			out = map[string]any{
				"user_id":                   userID,
				"deleted_category_ids":      r.DeletedCategoryIDs,
				"rewritten_transaction_ids": r.RewrittenTransactionIDs,
			}
		}
		if err != nil {
			failed++
			logger.Error("Category repair failed", log.FieldUserID, userID, log.FieldError, err)
			continue
		}
		if err := enc.Encode(out); err != nil {
			logger.Error("Failed to write result", log.FieldError, err)
		}
	}

	if failed > 0 {
		res.Cleanup()
		os.Exit(1)
	}
}
