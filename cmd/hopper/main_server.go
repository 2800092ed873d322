package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/hopper/internal/config"
	"github.com/standardbeagle/hopper/internal/debug"
	"github.com/standardbeagle/hopper/internal/mcp"
	"github.com/standardbeagle/hopper/internal/server"
	"github.com/standardbeagle/hopper/internal/version"
)

// serverCommand runs the index daemon until a signal or a /shutdown request
func serverCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	// A spawned daemon has no stderr, so traces go to a file
	if cfg.DebugLogging {
		logPath, err := debug.OpenLogFile("")
		if err != nil {
			return err
		}
		defer debug.CloseLogFile()
		fmt.Printf("Debug log: %s\n", logPath)
	}

	logger := debug.Default()
	srv := server.NewIndexServer(cfg, logger)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	fmt.Printf("Index server started\n")
	fmt.Printf("Socket: %s\n", srv.GetServerSocketPath())
	fmt.Printf("\nUse 'hopper shutdown' to stop the server\n")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	waitDone := make(chan struct{})
	go func() {
		srv.Wait()
		close(waitDone)
	}()

	select {
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %v, shutting down...\n", sig)
	case <-waitDone:
		fmt.Println("Server shutdown requested")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	fmt.Println("Server shut down cleanly")
	return nil
}

// shutdownCommand sends a shutdown request to the running server
func shutdownCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	client := server.NewClient(server.GetSocketPath(cfg.Server))
	if !client.IsServerRunning() {
		return fmt.Errorf("no server is running on %s", client.SocketPath())
	}

	if err := client.Shutdown(c.Bool("force")); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for client.IsServerRunning() {
		if time.Now().After(deadline) {
			return fmt.Errorf("server did not shut down")
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println("Server shut down successfully")
	return nil
}

// ensureServerRunning returns a client for the configured daemon, starting
// one in the background if none answers. A daemon from a different build is
// replaced.
func ensureServerRunning(c *cli.Context, cfg *config.Config) (*server.Client, error) {
	client := server.NewClient(server.GetSocketPath(cfg.Server))

	if ping, err := client.Ping(); err == nil {
		if ping.BuildID == version.BuildID() {
			return client, nil
		}
		fmt.Fprintf(os.Stderr, "Replacing index server from another build (pid %d)...\n", ping.PID)
		if err := client.Shutdown(false); err != nil {
			return nil, fmt.Errorf("failed to stop stale server: %w", err)
		}
		deadline := time.Now().Add(5 * time.Second)
		for client.IsServerRunning() && time.Now().Before(deadline) {
			time.Sleep(50 * time.Millisecond)
		}
	}

	fmt.Fprintln(os.Stderr, "Index server not running, starting in background...")

	executable, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	cmd := exec.Command(executable, daemonArgs(c, cfg)...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	cmd.SysProcAttr = detachedProcAttr()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}
	// Detach from the process so it continues after we exit
	if err := cmd.Process.Release(); err != nil {
		return nil, fmt.Errorf("failed to detach server process: %w", err)
	}

	if err := client.WaitForReady(10 * time.Second); err != nil {
		return nil, fmt.Errorf("server did not become ready: %w", err)
	}
	return client, nil
}

// daemonArgs forwards the global flags that shape the daemon's configuration.
func daemonArgs(c *cli.Context, cfg *config.Config) []string {
	var args []string
	if path := c.String("config"); path != "" {
		args = append(args, "--config", path)
	}
	if cfg.Project.Root != "" {
		args = append(args, "--root", cfg.Project.Root)
	}
	args = append(args, "--socket", server.GetSocketPath(cfg.Server))
	if cfg.DebugLogging {
		args = append(args, "--debug")
	}
	return append(args, "server")
}

// mcpCommand serves MCP tools on stdio until the client disconnects
func mcpCommand(c *cli.Context) error {
	// stdout belongs to the protocol
	debug.SetMCPMode(true)

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	srv, err := mcp.NewServer(cfg, debug.Default())
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := srv.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	return nil
}
