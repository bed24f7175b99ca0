package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/fundlaunch/platform/internal/api"
	"github.com/fundlaunch/platform/internal/config"
	"github.com/fundlaunch/platform/internal/engine"
	"github.com/fundlaunch/platform/internal/logging"
	"github.com/fundlaunch/platform/internal/plugin"
	"github.com/fundlaunch/platform/internal/report"
	"github.com/fundlaunch/platform/internal/showcase"
	"github.com/fundlaunch/platform/internal/telemetry"
)

func main() {
	cfgPath := flag.String("config", "scenario.yaml", "path to scenario file")
	logLevel := flag.String("log-level", "info", "log level: trace|debug|info|warn|error")
	reportsDir := flag.String("reports", "", "write run artifacts into this directory")
	showcaseDir := flag.String("showcase", "", "write the anonymized public snapshot into this directory")
	metricsAddr := flag.String("metrics-addr", "", "serve prometheus metrics on this address, e.g. :9090")
	apiAddr := flag.String("api-addr", "", "serve the run API on this address and keep the process alive")
	flag.Parse()

	logger := logging.New(*logLevel)

	cfg, err := config.LoadFile(*cfgPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", *cfgPath).Msg("scenario file not loaded, using defaults")
		cfg = config.Default()
	}

	if *metricsAddr != "" {
		srv := telemetry.Serve(*metricsAddr)
		defer func() { _ = srv.Shutdown(context.Background()) }()
		logger.Info().Str("addr", *metricsAddr).Msg("metrics server started")
	}

	eng := engine.New(plugin.DefaultRegistry(), logger)
	run, err := eng.Run(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("run failed")
	}

	summary := engine.BuildSummary(run)
	printSummary(summary)

	if *reportsDir != "" {
		if err := report.Write(*reportsDir, run); err != nil {
			logger.Fatal().Err(err).Msg("write reports")
		}
		logger.Info().Str("dir", *reportsDir).Msg("run artifacts written")
	}
	if *showcaseDir != "" {
		if err := showcase.WritePublicSnapshot(*showcaseDir, run); err != nil {
			logger.Fatal().Err(err).Msg("write showcase snapshot")
		}
		logger.Info().Str("dir", *showcaseDir).Msg("public snapshot written")
	}

	if *apiAddr != "" {
		store := api.NewRunStore()
		store.Set(run)
		server := api.NewServer(*apiAddr, store, logger)
		if err := server.Start(context.Background()); err != nil {
			logger.Fatal().Err(err).Msg("start api server")
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info().Msg("shutdown signal received")
		_ = server.Shutdown(context.Background())
	}
}

func printSummary(summary engine.Summary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle("Equities Fund Launch Platform")
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRows([]table.Row{
		{"Run id", summary.RunID},
		{"Signal symbols", summary.SignalSymbolCount},
		{"Allocations", summary.AllocationCount},
		{"Strategy books", summary.StrategyBookCount},
		{"Risk approved", summary.RiskApproved},
		{"Breaches", summary.BreachCount},
		{"Execution intents", summary.ExecutionIntentCount},
		{"Gross exposure", fmt.Sprintf("%.4f", summary.GrossExposure)},
		{"Net exposure", fmt.Sprintf("%.4f", summary.NetExposure)},
		{"Turnover", fmt.Sprintf("%.4f", summary.Turnover)},
		{"Execution notional", fmt.Sprintf("%.2f", summary.TotalExecutionNotional)},
		{"Top signal", fmt.Sprintf("%s (%.4f)", summary.TopSignalSymbol, summary.TopSignalScore)},
		{"Fleet health score", fmt.Sprintf("%.2f", summary.FleetHealthScore)},
		{"Control state", summary.ControlState},
		{"Policy overrides (applied/pending)", fmt.Sprintf("%d/%d", summary.AppliedPolicyOverrideCount, summary.PendingPolicyOverrideCount)},
		{"Plugin lifecycle events", summary.StrategyLifecycleEvents},
		{"Incident events / faults", fmt.Sprintf("%d / %d", summary.IncidentTimelineEvents, summary.ActiveIncidentFaults)},
		{"TCA fill / slippage", fmt.Sprintf("%.4f / %.2fbps", summary.TcaAvgFillRate, summary.TcaAvgSlippageBps)},
		{"Feedback state", summary.FeedbackPolicyState},
		{"Arena state", fmt.Sprintf("%s (%.4f)", summary.ArenaPolicyState, summary.ArenaConvergenceScore)},
	})
	tw.Render()
}
