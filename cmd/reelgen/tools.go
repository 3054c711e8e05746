package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-reel-backend/internal/domain"
	"github.com/tbourn/go-reel-backend/internal/poller"
	"github.com/tbourn/go-reel-backend/internal/repo"
	"github.com/tbourn/go-reel-backend/internal/services"
	"github.com/tbourn/go-reel-backend/internal/sysutil"
)

var watchCmd = &cobra.Command{
	Use:   "watch <processId>",
	Short: "Follow a generation until it succeeds or fails",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Inspect and adjust the credit ledger",
}

var creditsShowCmd = &cobra.Command{
	Use:   "show <userId>",
	Short: "Print a user's balance and recent transactions",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreditsShow,
}

var creditsGrantCmd = &cobra.Command{
	Use:   "grant <userId> <amount>",
	Short: "Append a manual ledger entry (negative amounts debit)",
	Args:  cobra.ExactArgs(2),
	RunE:  runCreditsGrant,
}

var creditsSubscribeCmd = &cobra.Command{
	Use:   "subscribe <userId> <plan> <monthlyCredits>",
	Short: "Activate or renew a plan and grant its monthly credits",
	Args:  cobra.ExactArgs(3),
	RunE:  runCreditsSubscribe,
}

func init() {
	watchCmd.Flags().String("api", "", "API base URL (default PUBLIC_BASE_URL + API_BASE_PATH)")
	watchCmd.Flags().String("token", "", "bearer token")
	watchCmd.Flags().String("user", "", "X-User-ID to send when no token is used")
	watchCmd.Flags().Duration("interval", poller.DefaultInterval, "poll interval, clamped to 1s..2s")
	watchCmd.Flags().Duration("timeout", 30*time.Minute, "give up after this long")

	creditsGrantCmd.Flags().String("type", string(domain.TxMonthlyReset), "transaction type")
	creditsGrantCmd.Flags().String("reason", "Manual adjustment", "ledger description")
	creditsGrantCmd.Flags().String("reference", "", "idempotency reference; repeating it adds nothing")

	creditsCmd.AddCommand(creditsShowCmd, creditsGrantCmd, creditsSubscribeCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("watch")
	if err != nil {
		return err
	}
	apiURL, _ := cmd.Flags().GetString("api")
	token, _ := cmd.Flags().GetString("token")
	user, _ := cmd.Flags().GetString("user")
	interval, _ := cmd.Flags().GetDuration("interval")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	base := sysutil.FirstNonEmpty(apiURL, cfg.Storage.PublicBaseURL+cfg.APIBasePath)
	client := poller.NewClient(base, token, user, cfg.Vendors.RequestTimeout)
	p := poller.New(client, interval, log.Logger)

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	out := cmd.OutOrStdout()
	outcome, err := p.Watch(ctx, args[0], func(u poller.Update) { printUpdate(out, u) })
	if err != nil {
		return err
	}
	switch outcome.Kind {
	case domain.OutcomeSuccess:
		fmt.Fprintf(out, "done: %s\n", outcome.FinalVideoURL)
		return nil
	default:
		return fmt.Errorf("generation failed: %s", outcome.Reason)
	}
}

func printUpdate(w io.Writer, u poller.Update) {
	marks := make([]string, 0, len(u.Steps))
	for _, s := range u.Steps {
		switch s.State {
		case poller.StepDone:
			marks = append(marks, "[x] "+s.Label)
		case poller.StepActive:
			marks = append(marks, "[>] "+s.Label)
		case poller.StepFailed:
			marks = append(marks, "[!] "+s.Label)
		default:
			marks = append(marks, "[ ] "+s.Label)
		}
	}
	fmt.Fprintf(w, "%3d%%  %-40s  %s\n", u.Snapshot.Process.Progress, u.Snapshot.Process.Status, strings.Join(marks, "  "))
}

// withCredits opens the database and hands a CreditService to fn.
func withCredits(role string, fn func(ctx context.Context, s *services.CreditService) error) error {
	cfg, err := loadConfig(role)
	if err != nil {
		return err
	}
	db, err := repo.Open(cfg.Database)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, services.NewCreditService(db, cfg.Pipeline.InitialCredits))
}

func runCreditsShow(cmd *cobra.Command, args []string) error {
	return withCredits("credits", func(ctx context.Context, s *services.CreditService) error {
		sum, err := s.Summary(ctx, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "balance: %d\n", sum.Balance)
		if sub := sum.ActiveSubscription; sub != nil {
			fmt.Fprintf(out, "plan: %s (%d/month, until %s)\n", sub.PlanType, sub.MonthlyCredits, sub.CurrentPeriodEnd.Format(time.DateOnly))
		}
		for _, t := range sum.RecentTransactions {
			fmt.Fprintf(out, "%s  %+6d  %-16s  %s\n", t.CreatedAt.Format(time.DateTime), t.Amount, t.TransactionType, t.Description)
		}
		return nil
	})
}

func runCreditsGrant(cmd *cobra.Command, args []string) error {
	amount, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	typ, _ := cmd.Flags().GetString("type")
	reason, _ := cmd.Flags().GetString("reason")
	ref, _ := cmd.Flags().GetString("reference")

	return withCredits("credits", func(ctx context.Context, s *services.CreditService) error {
		tx, err := s.Grant(ctx, args[0], amount, domain.TransactionType(strings.ToUpper(typ)), reason, ref)
		if errors.Is(err, services.ErrDuplicateDebit) {
			prev, gerr := repo.GetTransactionByReference(ctx, s.DB, ref, domain.TransactionType(strings.ToUpper(typ)))
			if gerr != nil {
				return err
			}
			cmd.Printf("reference %q already recorded at %s (%+d); nothing changed\n", ref, prev.CreatedAt.Format(time.DateTime), prev.Amount)
			return nil
		}
		if err != nil {
			return err
		}
		bal, err := s.Balance(ctx, args[0])
		if err != nil {
			return err
		}
		cmd.Printf("recorded %s %+d; balance %d\n", tx.TransactionType, tx.Amount, bal)
		return nil
	})
}

func runCreditsSubscribe(cmd *cobra.Command, args []string) error {
	monthly, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("monthlyCredits: %w", err)
	}
	return withCredits("credits", func(ctx context.Context, s *services.CreditService) error {
		sub, err := s.Subscribe(ctx, args[0], args[1], monthly)
		if err != nil {
			return err
		}
		cmd.Printf("%s active until %s\n", sub.PlanType, sub.CurrentPeriodEnd.Format(time.DateOnly))
		return nil
	})
}
