package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ssdpkit/internal/netfeed"
	"ssdpkit/internal/obslog"
	"ssdpkit/internal/udptransport"
	"ssdpkit/pkg/ssdp"
	"ssdpkit/ssdpservice"
)

var searchTimeout time.Duration

var searchCmd = &cobra.Command{
	Use:   "search <target>",
	Short: "Subscribe to a search target, print responses for a bounded window, then exit",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().DurationVar(&searchTimeout, "timeout", 5*time.Second, "how long to wait for responses before exiting")
}

type printingCallback struct{}

func (printingCallback) OnNotification(n ssdp.Notification) {
	switch n.Kind {
	case ssdp.NotificationAlive:
		fmt.Printf("ALIVE  nt=%s usn=%s location=%s\n", n.NotificationType, n.UniqueServiceName, n.Location)
	case ssdp.NotificationByeBye:
		fmt.Printf("BYEBYE nt=%s usn=%s\n", n.NotificationType, n.UniqueServiceName)
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := requireIface(); err != nil {
		return err
	}
	target := args[0]

	logger := obslog.New("ssdpd")
	defer logger.Sync()

	transport, err := udptransport.Listen(0)
	if err != nil {
		return fmt.Errorf("ssdpd: listen: %w", err)
	}
	defer transport.Close()

	feed := netfeed.New()
	svc := ssdpservice.New(transport, feed, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run(runCtx) }()

	key := svc.Subscribe(target, printingCallback{})
	defer svc.Unsubscribe(key)

	select {
	case <-time.After(searchTimeout):
	case <-ctx.Done():
	}
	cancelRun()
	<-runErr
	return nil
}
