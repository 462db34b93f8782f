package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
)

// AppConfig is the consolidated client configuration, read from the
// environment. The cmd layer loads a .env file first, so both shells and
// dotenv setups feed the same struct.
type AppConfig struct {
	// Absolute directory where the registry database and logs live.
	DataDir string `env:"CLASH_DATA_DIR"`
	// DBPath overrides the registry database location. Defaults to
	// DataDir/registry.db.
	DBPath string `env:"CLASH_DB_PATH"`
	// StatsURL is the base URL of the species stat service. Empty means the
	// built-in offline catalog.
	StatsURL string `env:"CLASH_STATS_URL"`
	// PlayerID identifies this participant in session rows.
	PlayerID string `env:"CLASH_PLAYER_ID"`
	// Wallet is the address the escrow adapter signs with.
	Wallet string `env:"CLASH_WALLET"`
	// BetAtoms is the stake deposited per side, in atoms.
	BetAtoms int64 `env:"CLASH_BET_ATOMS" envDefault:"100000000"`
	// TurnTimeout is the countdown after which a stalled turn is auto-played.
	TurnTimeout time.Duration `env:"CLASH_TURN_TIMEOUT" envDefault:"30s"`
	Debug       bool          `env:"CLASH_DEBUG"`
}

// LoadAppConfig reads the environment and fills in derivable defaults.
func LoadAppConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".critterclash")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "registry.db")
	}
	if cfg.PlayerID == "" {
		cfg.PlayerID = uuid.NewString()
	}
	if cfg.Wallet == "" {
		cfg.Wallet = cfg.PlayerID
	}
	return cfg, nil
}
