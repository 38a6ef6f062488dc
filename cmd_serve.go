package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kartoza/redshift/internal/config"
	"github.com/kartoza/redshift/internal/logging"
	"github.com/kartoza/redshift/internal/server"
	"github.com/spf13/cobra"
)

var serveFlags struct {
	port     int
	model    string
	dataDir  string
	positive string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve verification, ranking and candidate endpoints over HTTP",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.IntVar(&serveFlags.port, "port", 0, "Port to listen on (default from settings)")
	f.StringVar(&serveFlags.model, "model", "", "Model artifact directory (default from settings)")
	f.StringVar(&serveFlags.dataDir, "data-dir", "", "Directory holding the catalogs (default from settings)")
	f.StringVar(&serveFlags.positive, "positive-class", "", "Label counted as a planet (default from settings)")
}

// serverConfig maps the settings file and flags onto the server config.
func serverConfig() config.Config {
	port := settings.Server.Port
	if serveFlags.port > 0 {
		port = serveFlags.port
	}
	return config.Config{
		Port:             port,
		DataDir:          pick(serveFlags.dataDir, settings.DataDir),
		ModelDir:         pick(serveFlags.model, settings.ModelDir),
		Version:          version,
		PositiveClass:    pick(serveFlags.positive, settings.PositiveClass),
		RankTarget:       settings.RankTarget,
		CandidateCatalog: settings.Catalogs.Candidates,
		ConfirmedCatalog: settings.Catalogs.Confirmed,
		CandidateDB:      settings.Catalogs.CandidateDB,
		Encoding:         settings.Encoding,
		CacheSize:        settings.Server.CacheSize,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := logging.New("main")
	cfg := serverConfig()

	if dir := filepath.Dir(cfg.CandidateDB); cfg.CandidateDB != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	port, err := findAvailablePort(cfg.Port, 100)
	if err != nil {
		return err
	}
	if port != cfg.Port {
		log.Info("port in use, using another", "requested", cfg.Port, "port", port)
	}
	cfg.Port = port

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitForServer(serverURL, 10*time.Second)
	log.Info("server started", "url", serverURL, "model", cfg.ModelDir)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	case <-cmd.Context().Done():
		log.Info("shutting down", "reason", cmd.Context().Err())
	}
	return srv.Stop()
}

// waitForServer polls until the server is accepting connections.
func waitForServer(url string, timeout time.Duration) {
	addr := url[len("http://"):]
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	logging.New("main").Warn("server may not be ready", "url", url)
}

// findAvailablePort finds an available port, starting from the given port.
// If the port is in use, it tries subsequent ports up to maxAttempts times.
func findAvailablePort(startPort int, maxAttempts int) (int, error) {
	for i := 0; i < maxAttempts; i++ {
		port := startPort + i
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			listener.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port found after %d attempts starting from %d", maxAttempts, startPort)
}
