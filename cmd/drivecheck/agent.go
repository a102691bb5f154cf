package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mscrnt/drivecheck/pkg/agent"
	"github.com/mscrnt/drivecheck/pkg/cert"
	"github.com/mscrnt/drivecheck/pkg/config"
	"github.com/mscrnt/drivecheck/pkg/device"
)

func agentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Remote device health agent",
		Long:  "Serve device health over HTTPS with mutual TLS, and query remote agents",
	}

	cmd.AddCommand(agentServeCmd())
	cmd.AddCommand(agentConnectCmd())
	cmd.AddCommand(agentCertsCmd())
	cmd.AddCommand(agentVerifyCmd())

	return cmd
}

// defaultCertDir holds the bundle written by "agent certs".
func defaultCertDir() string {
	if dir := config.Dir(); dir != "" {
		return filepath.Join(dir, "certs")
	}
	return "certs"
}

// orDefault returns value, or fallback when value is empty.
func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func agentServeCmd() *cobra.Command {
	var (
		port     int
		certFile string
		keyFile  string
		caFile   string
		logFile  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent server",
		Long: `Start the device health agent with mTLS authentication. Only clients with a
certificate signed by the configured CA are accepted.

The agent exposes the following endpoints:
  /health                 - Liveness check
  /devices                - Device list with identity and temperature
  /devices/smart?path=... - SMART attributes or NVMe health of one device
  /host                   - Host information
  /metrics                - Prometheus metrics

Flags override the agent section of the config file. Without certificate
flags the bundle from "drivecheck agent certs" is used.

Examples:
  # Start with the default bundle
  drivecheck agent serve

  # Explicit certificates on a custom port
  drivecheck agent serve --port 9443 --cert server.crt --key server.key --ca ca.crt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bundle := cert.BundlePaths(defaultCertDir())
			ac := agent.Config{
				Port:     cfg.Agent.Port,
				CertFile: orDefault(certFile, orDefault(cfg.Agent.CertFile, bundle.ServerCert)),
				KeyFile:  orDefault(keyFile, orDefault(cfg.Agent.KeyFile, bundle.ServerKey)),
				CAFile:   orDefault(caFile, orDefault(cfg.Agent.CAFile, bundle.CACert)),
				LogFile:  orDefault(logFile, cfg.Agent.LogFile),
			}
			if cmd.Flags().Changed("port") {
				ac.Port = port
			}

			names, err := attributeNames()
			if err != nil {
				return err
			}

			server, err := agent.NewServer(ac, agent.WithLogger(logger), agent.WithAttributes(names))
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errChan := make(chan error, 1)
			go func() {
				errChan <- server.Start()
			}()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Agent listening on port %d with mTLS\n", ac.Port)
			fmt.Fprintf(out, "Certificate: %s\n", ac.CertFile)
			fmt.Fprintf(out, "CA: %s\n", ac.CAFile)

			select {
			case <-ctx.Done():
				logger.Info("Received shutdown signal")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown error: %w", err)
				}
				return nil

			case err := <-errChan:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server error: %w", err)
			}
		},
	}

	cmd.Flags().IntVar(&port, "port", agent.DefaultPort, "Port to listen on")
	cmd.Flags().StringVar(&certFile, "cert", "", "Server certificate file")
	cmd.Flags().StringVar(&keyFile, "key", "", "Server private key file")
	cmd.Flags().StringVar(&caFile, "ca", "", "CA certificate for client verification")
	cmd.Flags().StringVar(&logFile, "log", "", "Request log file (default: stderr)")

	return cmd
}

func agentConnectCmd() *cobra.Command {
	var (
		host       string
		port       int
		certFile   string
		keyFile    string
		caFile     string
		endpoint   string
		devicePath string
		timeout    time.Duration
		raw        bool
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Query a remote agent",
		Long: `Connect to a remote agent and print what it reports.

Endpoints: health, devices, smart, host, metrics.

Examples:
  # Devices of a remote host
  drivecheck agent connect --host 192.168.1.100 --endpoint devices

  # SMART table of one remote disk
  drivecheck agent connect --host nas.local --endpoint smart --path /dev/sda

  # Raw JSON
  drivecheck agent connect --host nas.local --endpoint host --raw`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bundle := cert.BundlePaths(defaultCertDir())
			client, err := agent.NewClient(agent.ClientConfig{
				Host:     host,
				Port:     port,
				CertFile: orDefault(certFile, bundle.ClientCert),
				KeyFile:  orDefault(keyFile, bundle.ClientKey),
				CAFile:   orDefault(caFile, bundle.CACert),
				Timeout:  timeout,
			})
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return queryAgent(ctx, cmd.OutOrStdout(), client, endpoint, devicePath, raw)
		},
	}

	cmd.Flags().StringVar(&host, "host", "localhost", "Agent host")
	cmd.Flags().IntVar(&port, "port", agent.DefaultPort, "Agent port")
	cmd.Flags().StringVar(&certFile, "cert", "", "Client certificate file")
	cmd.Flags().StringVar(&keyFile, "key", "", "Client private key file")
	cmd.Flags().StringVar(&caFile, "ca", "", "CA certificate for server verification")
	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "devices", "Endpoint to query")
	cmd.Flags().StringVar(&devicePath, "path", "", "Device path for the smart endpoint")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the response body unchanged")

	return cmd
}

func queryAgent(ctx context.Context, w io.Writer, client *agent.Client, endpoint, path string, raw bool) error {
	if endpoint == "smart" && path == "" {
		return fmt.Errorf("--path is required for the smart endpoint")
	}

	if raw || endpoint == "metrics" {
		target := endpoint
		if endpoint == "smart" {
			target = "devices/smart?path=" + url.QueryEscape(path)
		}
		body, err := client.Get(ctx, target)
		if err != nil {
			return err
		}
		_, err = w.Write(body)
		return err
	}

	switch endpoint {
	case "health":
		if err := client.Health(ctx); err != nil {
			return err
		}
		fmt.Fprintln(w, okStyle.Render("OK"))

	case "devices":
		devices, err := client.Devices(ctx)
		if err != nil {
			return err
		}
		infos := make([]device.Info, len(devices))
		errs := make(map[string]error)
		for i, d := range devices {
			infos[i] = d.Info
			if d.Error != "" {
				errs[d.Path] = errors.New(d.Error)
			}
		}
		fmt.Fprintln(w, deviceTable(infos, errs))

	case "smart":
		report, err := client.Smart(ctx, path)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, remoteSmartTable(report))

	case "host":
		info, err := client.Host(ctx)
		if err != nil {
			return err
		}
		t := newTable("Key", "Value")
		t.Row("Hostname", info.Hostname)
		t.Row("OS", info.OS)
		t.Row("Platform", info.Platform+" "+info.PlatformVersion)
		t.Row("Kernel", info.KernelVersion)
		t.Row("Uptime", formatDuration(time.Duration(info.Uptime)*time.Second))
		fmt.Fprintln(w, t.String())

	default:
		return fmt.Errorf("unknown endpoint %q (health, devices, smart, host, metrics)", endpoint)
	}
	return nil
}

func remoteSmartTable(report *agent.SmartReport) string {
	if len(report.Attributes) > 0 {
		t := newTable("ID", "Name", "Current", "Worst", "Threshold", "Raw", "Unit")
		for _, a := range report.Attributes {
			row := []string{
				strconv.Itoa(int(a.ID)),
				a.Name,
				strconv.Itoa(int(a.Current)),
				strconv.Itoa(int(a.Worst)),
				strconv.Itoa(int(a.Threshold)),
				strconv.FormatUint(a.Raw, 10),
				a.Unit,
			}
			if a.Failing {
				for i := range row {
					row[i] = critStyle.Render(row[i])
				}
			}
			t.Row(row...)
		}
		return t.String()
	}

	t := newTable("Name", "Value", "Unit")
	for _, h := range report.Health {
		t.Row(h.Name, h.Value, h.Unit)
	}
	return t.String()
}

func agentCertsCmd() *cobra.Command {
	var (
		dir      string
		hosts    []string
		validity time.Duration
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Generate a CA with server and client certificates",
		Long: `Generate a self-signed CA plus one server and one client certificate for
the agent. Copy ca.crt, client.crt and client.key to the machines that query
the agent.

Examples:
  # Default directory, server reachable as nas.local
  drivecheck agent certs --host nas.local --host 192.168.1.100

  # One year validity in a custom directory
  drivecheck agent certs --dir ./certs --validity 8760h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				dir = defaultCertDir()
			}
			paths := cert.BundlePaths(dir)
			if !force {
				if _, err := os.Stat(paths.CACert); err == nil {
					return fmt.Errorf("CA certificate already exists at %s (use --force to overwrite)", paths.CACert)
				}
			}

			paths, err := cert.GenerateBundle(dir, hosts, validity)
			if err != nil {
				return fmt.Errorf("failed to generate certificates: %w", err)
			}

			out := cmd.OutOrStdout()
			t := newTable("File", "Path")
			t.Row("CA certificate", paths.CACert)
			t.Row("CA key", paths.CAKey)
			t.Row("Server certificate", paths.ServerCert)
			t.Row("Server key", paths.ServerKey)
			t.Row("Client certificate", paths.ClientCert)
			t.Row("Client key", paths.ClientKey)
			fmt.Fprintln(out, t.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Output directory (default: ~/.drivecheck/certs)")
	cmd.Flags().StringSliceVar(&hosts, "host", []string{"localhost", "127.0.0.1"}, "Server host names and IPs")
	cmd.Flags().DurationVar(&validity, "validity", 365*24*time.Hour, "Certificate validity")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing bundle")

	return cmd
}

func agentVerifyCmd() *cobra.Command {
	var (
		dir    string
		client bool
	)

	cmd := &cobra.Command{
		Use:   "verify CERT",
		Short: "Verify a certificate against the agent CA",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = defaultCertDir()
			}
			paths := cert.BundlePaths(dir)

			ca, err := cert.LoadAuthority(paths.CACert, paths.CAKey)
			if err != nil {
				return fmt.Errorf("failed to load CA: %w", err)
			}
			leaf, err := cert.LoadCertificate(args[0])
			if err != nil {
				return err
			}

			kind := cert.Server
			if client {
				kind = cert.Client
			}
			if err := ca.Verify(leaf, kind); err != nil {
				return fmt.Errorf("%s certificate %s is not valid: %w", kind, args[0], err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s certificate for %q, valid until %s\n",
				okStyle.Render("OK"), kind, leaf.Subject.CommonName, leaf.NotAfter.Format(timeLayout))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Bundle directory (default: ~/.drivecheck/certs)")
	cmd.Flags().BoolVar(&client, "client", false, "Verify as a client certificate")

	return cmd
}
