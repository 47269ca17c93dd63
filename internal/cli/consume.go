package cli

import (
	"cmp"
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iliyamo/cinema-seat-booking/internal/queue"
)

// NewConsumeCommand creates consume-notifications, which runs the
// booking.confirmed consumer in the foreground until interrupted.
func NewConsumeCommand() *cobra.Command {
	var url, logDir string
	cmd := &cobra.Command{
		Use:   "consume-notifications",
		Short: "Consume booking confirmations and append them to the notification log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = cmp.Or(os.Getenv("RABBITMQ_URL"), os.Getenv("AMQP_URL"))
			}
			if url == "" {
				return errors.New("no broker url: pass --url or set RABBITMQ_URL")
			}
			if logDir == "" {
				logDir = cmp.Or(os.Getenv("NOTIFICATION_LOG_DIR"), "logs")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			err := queue.NewConsumer(url, logDir).Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "AMQP url (defaults to RABBITMQ_URL)")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "directory of booking.log (defaults to NOTIFICATION_LOG_DIR)")
	return cmd
}
