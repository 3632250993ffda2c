package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"virtual-exchange/internal/config"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies shared by commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "exchanged",
		Short: "Virtual exchange daemon - a simulated stock market",
		Long: `exchanged runs a simulated stock market: a basket of fictional securities
whose prices advance on a five-minute cadence through a regime-aware
stochastic model, plus a FIFO-lot trading ledger.

Use 'exchanged run' to start the market daemon.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/virtual-exchange)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newMarketCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
			} else {
				output.Printf("virtual-exchange v%s\n", Version)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the daemon configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Session")
	output.Printf("  Open:            %s\n", cfg.Session.OpenTime)
	output.Printf("  Close:           %s\n", cfg.Session.CloseTime)
	output.Println()

	output.Bold("Simulation")
	output.Printf("  Tick Interval:   %s\n", cfg.Sim.TickInterval)
	output.Printf("  Ticks Per Day:   %d\n", cfg.Sim.TicksPerDay)
	output.Println()

	output.Bold("Price Limits")
	output.Printf("  Window:          %.0fh / ±%.0f%%\n", cfg.Limits.WindowHours, cfg.Limits.WindowPercent*100)
	output.Printf("  Daily:           ±%.0f%%\n", cfg.Limits.DailyPercent*100)
	output.Println()

	output.Bold("Trading")
	output.Printf("  Sell Lock:       %s\n", cfg.Trading.SellLock)
	output.Printf("  Fee Rate:        %.2f%%\n", cfg.Trading.FeeRate*100)
	output.Printf("  Max Slippage:    %.0f%%\n", cfg.Trading.MaxSlippage*100)
	output.Println()

	output.Bold("Store")
	output.Printf("  Path:            %s\n", cfg.Store.Path)
}
