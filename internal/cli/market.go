package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"virtual-exchange/internal/market"
	"virtual-exchange/internal/store"
)

func newMarketCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "market",
		Short: "Inspect the persisted market",
		Long:  "Read-only views over the market database. The daemon does not need to be running.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all securities with their last prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(app, func(reg *market.Registry) error {
				output := NewOutput(cmd)
				ids := reg.IDs()
				if output.IsJSON() {
					type row struct {
						Index    int     `json:"index"`
						ID       string  `json:"id"`
						Name     string  `json:"name"`
						Industry string  `json:"industry"`
						Price    float64 `json:"price"`
					}
					rows := make([]row, 0, len(ids))
					for i, id := range ids {
						st, _ := reg.Get(id)
						rows = append(rows, row{i + 1, st.ID, st.Name, st.Industry, st.CurrentPrice})
					}
					return output.JSON(rows)
				}
				output.Bold("%-4s %-6s %-26s %-16s %10s", "#", "ID", "Name", "Industry", "Price")
				for i, id := range ids {
					st, _ := reg.Get(id)
					output.Printf("%-4d %-6s %-26s %-16s %10.2f\n", i+1, st.ID, st.Name, st.Industry, st.CurrentPrice)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "price <identifier>",
		Short: "Show one security's price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(app, func(reg *market.Registry) error {
				output := NewOutput(cmd)
				st, ok := reg.Resolve(args[0])
				if !ok {
					return fmt.Errorf("no stock matches %q", args[0])
				}
				if output.IsJSON() {
					return output.JSON(map[string]interface{}{
						"id":             st.ID,
						"name":           st.Name,
						"price":          st.CurrentPrice,
						"previous_close": st.PreviousClose,
					})
				}
				output.Printf("%s (%s): %.2f", st.Name, st.ID, st.CurrentPrice)
				if st.PreviousClose > 0 {
					change := (st.CurrentPrice - st.PreviousClose) / st.PreviousClose * 100
					output.Printf("  (%+.2f%% vs previous close)", change)
				}
				output.Println()
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the session status",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			clock := market.NewSessionClock(app.Config.Session)
			status, wait := clock.Status()
			if output.IsJSON() {
				output.JSON(map[string]interface{}{
					"status":          string(status),
					"next_transition": wait.String(),
				})
				return
			}
			output.Printf("Market: %s (next transition in %s)\n", status, wait.Round(time.Second))
		},
	})

	return cmd
}

// withRegistry opens the store, loads the stocks and runs fn.
func withRegistry(app *App, fn func(*market.Registry) error) error {
	st, err := store.NewSQLiteStore(app.Config.Store.Path, app.Config.Trading.SellLock)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	stocks, err := st.LoadStocks(context.Background())
	if err != nil {
		return fmt.Errorf("loading stocks: %w", err)
	}
	return fn(market.NewRegistry(stocks))
}
