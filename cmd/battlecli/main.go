package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/decred/slog"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"critterclash/escrow"
	"critterclash/registry"
	"critterclash/session"
	"critterclash/statsource"
)

var (
	flagDataDir = flag.String("datadir", "", "Directory for the registry database and logs")
	flagPlayer  = flag.String("player", "", "Participant id (overrides CLASH_PLAYER_ID)")
	flagWallet  = flag.String("wallet", "", "Wallet address (overrides CLASH_WALLET)")
	flagDebug   = flag.Bool("debug", false, "Enable debug logging")
)

func realMain() error {
	flag.Parse()

	// .env first so both shells and dotenv setups feed the same config.
	_ = godotenv.Load()

	cfg, err := session.LoadAppConfig()
	if err != nil {
		return err
	}
	if *flagDataDir != "" {
		cfg.DataDir = *flagDataDir
		cfg.DBPath = filepath.Join(cfg.DataDir, "registry.db")
	}
	if *flagPlayer != "" {
		cfg.PlayerID = *flagPlayer
	}
	if *flagWallet != "" {
		cfg.Wallet = *flagWallet
	}
	if *flagDebug {
		cfg.Debug = true
	}
	if err := os.MkdirAll(filepath.Join(cfg.DataDir, "logs"), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(cfg.DataDir, "logs", "battlecli.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	backend := slog.NewBackend(logFile)
	log := backend.Logger("CLSH")
	if cfg.Debug {
		log.SetLevel(slog.LevelDebug)
	}

	reg, err := registry.Open(cfg.DBPath, backend.Logger("RGST"))
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer reg.Close()

	// In-process contract; the production escrow gateway binds the same
	// Adapter surface.
	contract := escrow.NewMemContract(backend.Logger("ESCR"))

	var src statsource.Source
	if cfg.StatsURL != "" {
		src = statsource.NewHTTPSource(cfg.StatsURL)
	} else {
		src = statsource.DefaultCatalog()
	}

	ctrl := session.New(cfg, reg, contract.Bind(cfg.Wallet), src, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctrl.Run(gctx) })

	log.Infof("battlecli up: player=%s wallet=%s db=%s", cfg.PlayerID, cfg.Wallet, cfg.DBPath)

	as := newAppstate(ctx, cancel, ctrl, cfg, log)
	p := tea.NewProgram(as)
	if _, err := p.Run(); err != nil {
		return err
	}
	cancel()
	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func main() {
	if err := realMain(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
