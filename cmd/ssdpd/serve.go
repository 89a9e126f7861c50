package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"ssdpkit/internal/descriptor"
	"ssdpkit/internal/netfeed"
	"ssdpkit/internal/obslog"
	"ssdpkit/internal/udptransport"
	"ssdpkit/pkg/ssdp"
	"ssdpkit/ssdpservice"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Join the discovered interfaces, advertise a root device, and answer searches",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := requireIface(); err != nil {
		return err
	}
	ip, _, err := ifaceIPv4(cfg.iface)
	if err != nil {
		return err
	}

	usn := cfg.usn
	if usn == "" {
		usn = "uuid:" + uuid.NewString()
	}
	location := cfg.location
	if location == "" {
		location = fmt.Sprintf("http://%s:8080/desc.xml", ip)
	}
	locURL, err := url.Parse(location)
	if err != nil {
		return fmt.Errorf("--location: %w", err)
	}

	logger := obslog.New("ssdpd")
	defer logger.Sync()

	transport, err := udptransport.Listen(ssdp.MulticastPort)
	if err != nil {
		return fmt.Errorf("ssdpd: listen: %w", err)
	}
	defer transport.Close()

	feed := netfeed.New()
	svc := ssdpservice.New(transport, feed, logger)

	device := descriptor.Device{
		DeviceType:   "urn:schemas-upnp-org:device:Basic:1",
		FriendlyName: "ssdpd",
		Manufacturer: "ssdpkit",
		ModelName:    "ssdpd",
		UDN:          usn,
	}
	descSrv, err := descriptor.NewServer(device, locURL.Path, logger)
	if err != nil {
		return fmt.Errorf("ssdpd: descriptor server: %w", err)
	}
	go func() {
		if err := descSrv.Start(locURL.Host); err != nil {
			logger.Errorw("descriptor server stopped", "err", err)
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.metricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorw("metrics server stopped", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run(ctx) }()

	svc.Advertise(usn, ssdp.Advertisement{
		NotificationType: "upnp:rootdevice",
		Location:         location,
	})
	logger.Infow("advertising root device", "usn", usn, "location", location, "iface", cfg.iface)

	err = <-runErr

	svc.Deadvertise(usn)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = descSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	if err != nil && err != context.Canceled {
		return fmt.Errorf("ssdpd: serve: %w", err)
	}
	return nil
}
