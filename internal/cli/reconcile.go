package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeromicro/go-zero/core/logx"

	"arena-api/internal/config"
	"arena-api/internal/svc"
)

// reconcileTimeout bounds the whole one-shot pass, probe included.
const reconcileTimeout = 30 * time.Second

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one venue reconciliation pass and exit",
	Long: `Reconcile restores persisted account balances, pulls the open positions
from the venue and rebuilds each agent's book from the ownership tags in
the client order ids. It needs no LLM configuration and never places
orders.`,
	RunE: runReconcile,
}

var reconcileConfigPath string

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().StringVarP(&reconcileConfigPath, "config", "f", "etc/arena.yaml", "path to the main config file")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(reconcileConfigPath)
	if err != nil {
		return configErr(err)
	}
	logx.DisableStat()

	svcCtx := svc.NewServiceContext(*cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rctx, cancel := context.WithTimeout(ctx, reconcileTimeout)
	defer cancel()

	if err := svcCtx.AssertOneWayMode(rctx); err != nil {
		return runtimeErr(fmt.Errorf("venue probe: %w", err))
	}

	report, err := svcCtx.Reconciler.Reconcile(rctx)
	if err != nil {
		return runtimeErr(fmt.Errorf("reconcile: %w", err))
	}

	fmt.Printf("Reconcile done in %s: added=%d updated=%d removed=%d unowned=%d\n",
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
		report.Added, report.Updated, report.Removed, report.Unowned)

	ids := make([]string, 0, len(report.PerAgent))
	for id := range report.PerAgent {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rep := report.PerAgent[id]
		if len(rep.Added)+len(rep.Updated)+len(rep.Removed) == 0 {
			continue
		}
		fmt.Printf("  %s: added=%d updated=%d removed=%d\n", id, len(rep.Added), len(rep.Updated), len(rep.Removed))
	}
	return nil
}
