package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/proc"
	"github.com/zeromicro/go-zero/rest"

	"arena-api/internal/config"
	"arena-api/internal/handler"
	"arena-api/internal/svc"
	"arena-api/pkg/journal"
)

// venueProbeTimeout bounds the position-mode check before the first cycle.
const venueProbeTimeout = 10 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the API server and the trading scheduler",
	Long: `Start boots the full arena: venue client, market cache, agent registry,
decision pipeline and cycle scheduler, plus the read-only HTTP API.

The first trading cycle runs immediately; later cycles follow the configured
interval. SIGINT and SIGTERM drain the in-flight cycle before the process
exits.`,
	RunE: runStart,
}

var startConfigPath string

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().StringVarP(&startConfigPath, "config", "f", "etc/arena.yaml", "path to the main config file")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(startConfigPath)
	if err != nil {
		return configErr(err)
	}

	server := rest.MustNewServer(cfg.RestConf)
	defer server.Stop()
	logx.DisableStat()

	LogConfigSummary(cfg)

	svcCtx := svc.NewServiceContext(*cfg)
	if svcCtx.Scheduler == nil {
		return configErr(errors.New("an llm config section is required to start the arena"))
	}

	probeCtx, cancel := context.WithTimeout(context.Background(), venueProbeTimeout)
	err = svcCtx.AssertOneWayMode(probeCtx)
	cancel()
	if err != nil {
		return runtimeErr(fmt.Errorf("venue probe: %w", err))
	}

	jw, err := journal.NewWriter(filepath.Join(cfg.DataPath, "journal"), svcCtx.Bus)
	if err != nil {
		return runtimeErr(err)
	}
	if err := jw.Start(); err != nil {
		return runtimeErr(err)
	}

	handler.RegisterHandlers(server, svcCtx)

	// A draining cycle may use its whole budget; give the graceful stopper
	// room before it force-kills the process.
	proc.SetTimeToForceQuit(svcCtx.ArenaConfig.Arena.CycleInterval)

	svcCtx.Scheduler.Start(context.Background())

	fmt.Printf("Starting arena at %s:%d...\n", cfg.Host, cfg.Port)
	server.Start()

	// Start returned, so the HTTP side is already down. Drain the trading
	// side: no new cycles, finish the in-flight one, flush the journal.
	svcCtx.Scheduler.Shutdown()
	svcCtx.Bus.Close()
	jw.Close()
	if svcCtx.LLM != nil {
		_ = svcCtx.LLM.Close()
	}
	logx.Info("arena stopped")
	return nil
}
