package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/aegis-relief/aegis/internal/activity"
	"github.com/aegis-relief/aegis/internal/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var oracleURL string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aegisctl",
	Short: "Aegis oracle operations CLI",
	Long: `aegisctl is the operator's command-line interface for the Aegis oracle.

It reads on-ledger request state, tails the activity feed of a running
oracled, and can trigger a manual treasury payout.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		viper.AutomaticEnv()
		if oracleURL == "" {
			oracleURL = viper.GetString("oracle_url")
		}
		if oracleURL == "" {
			oracleURL = "http://localhost:8000"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&oracleURL, "oracle-url", "", "base URL of a running oracled (for feed commands)")
	rootCmd.AddCommand(versionCmd, statusCmd, activityCmd, payoutCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the aegisctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

// chainClient dials a chain client from the environment. Mutating commands
// require the full oracle configuration; status reads do too since they go
// straight to the RPC endpoint.
func chainClient() (*chain.Client, error) {
	cfg := chain.Config{
		RPCURL:         viper.GetString("chain_rpc_url"),
		ChainID:        viper.GetInt64("chain_id"),
		PrivateKey:     viper.GetString("oracle_private_key"),
		MissionControl: viper.GetString("mission_control_address"),
		Treasury:       viper.GetString("aid_treasury_address"),
	}
	client := chain.NewClient(cfg, zap.NewNop())
	if !client.Configured() {
		return nil, chain.ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.Dial(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

var statusCmd = &cobra.Command{
	Use:   "status <request-id>",
	Short: "Read a request's on-ledger status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("request id must be a positive integer: %w", err)
		}

		client, err := chainClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		view, err := client.ReadRequest(ctx, id)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "ID\t%d\n", view.ID)
		fmt.Fprintf(w, "STATUS\t%s\n", view.Status)
		fmt.Fprintf(w, "REQUESTER\t%s\n", view.Requester)
		fmt.Fprintf(w, "PROVIDER\t%s\n", view.Provider)
		fmt.Fprintf(w, "COST_USD\t%d\n", view.CostUSD)
		return w.Flush()
	},
}

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Dump a running oracled's activity feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		httpClient := &http.Client{Timeout: 10 * time.Second}
		resp, err := httpClient.Get(oracleURL + "/api/activity")
		if err != nil {
			return fmt.Errorf("fetch activity from %s: %w", oracleURL, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("oracled returned %s", resp.Status)
		}

		var payload struct {
			Events []activity.Event `json:"events"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return fmt.Errorf("decode activity: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tTYPE\tREQUEST\tTX")
		for _, ev := range payload.Events {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				ev.Timestamp.Format(time.RFC3339), ev.Type, ev.RequestID, ev.TxHash)
		}
		return w.Flush()
	},
}

var payoutCmd = &cobra.Command{
	Use:   "payout <provider-address> <usd-amount>",
	Short: "Trigger a manual treasury payout",
	Long: `Submits AidTreasury.processPayout directly.

Delivery confirmation already pays providers out atomically on-ledger; use
this only for out-of-band compensation. The contract rejects a second payout
for an already-paid delivery.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("invalid provider address %q", args[0])
		}
		amount, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("usd amount must be a non-negative integer: %w", err)
		}

		client, err := chainClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		txHash, err := client.ProcessPayout(ctx, common.HexToAddress(args[0]), amount)
		if err != nil {
			return err
		}
		fmt.Printf("payout confirmed: %s\n", txHash.Hex())
		archivePayout(ctx, txHash.Hex())
		return nil
	},
}

// archivePayout records the manual payout in the activity archive when a
// database is configured. Archiving is best-effort: the payout already
// happened on-ledger, so a failure here only costs the audit row.
func archivePayout(ctx context.Context, txHash string) {
	dbURL := viper.GetString("database_url")
	if dbURL == "" {
		return
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: payout not archived: %v\n", err)
		return
	}
	defer pool.Close()

	archive := activity.NewArchive(pool, zap.NewNop())
	ev := activity.Event{
		Type:      activity.TypePayoutProcessed,
		TxHash:    txHash,
		Timestamp: time.Now().UTC(),
	}
	if err := archive.Store(ctx, ev); err != nil {
		fmt.Fprintf(os.Stderr, "warning: payout not archived: %v\n", err)
	}
}
