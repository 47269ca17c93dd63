package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/cinema-seat-booking/internal/clock"
	"github.com/iliyamo/cinema-seat-booking/internal/repository"
	"github.com/iliyamo/cinema-seat-booking/internal/service"
	"github.com/iliyamo/cinema-seat-booking/internal/worker"
)

// NewReleaseExpiredCommand creates release-expired, a one-shot sweep for
// cron style deployments that run without the in-process reaper.
func NewReleaseExpiredCommand() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "release-expired",
		Short: "Release every seat lock older than the lock TTL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			if ttl <= 0 {
				ttl = cfg.SeatLockTTL
			}

			clk := clock.NewSystem()
			locks := service.NewLockManager(repository.NewMySQLStore(db), clk, ttl, nil)
			n, err := worker.NewReaper(locks, clk, time.Minute, ttl, nil, nil).RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released %d seat(s)\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "lock TTL (defaults to SEAT_LOCK_TTL)")
	return cmd
}
