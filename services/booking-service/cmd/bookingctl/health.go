package main

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/config"
	"github.com/md-rashed-zaman/salonbook/libs/grpcx"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/credentials"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func healthCmd() *cobra.Command {
	var (
		addr    string
		service string
		timeout time.Duration
		useTLS  bool
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the booking service gRPC health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var tc credentials.TransportCredentials
			if useTLS {
				tc = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
			}
			conn, err := grpcx.Dial(addr, grpcx.DialOptions{TLS: tc})
			if err != nil {
				return err
			}
			defer conn.Close()

			status, err := grpcx.CheckHealth(cmd.Context(), conn, service, timeout)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status.String())
			if status != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("%s is %s", addr, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", config.String("BOOKING_GRPC_ADDR", "localhost:9093"), "gRPC address")
	cmd.Flags().StringVar(&service, "service", "", "service name to check (empty = whole server)")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "health check timeout")
	cmd.Flags().BoolVar(&useTLS, "tls", false, "use TLS")
	return cmd
}
