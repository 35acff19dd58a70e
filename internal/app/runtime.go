package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Start launches watch mode: the refresh loop and, when an address is
// configured, the HTTP server. It requires Init to have completed. The
// returned channel carries server failures and is nil without a server.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.initialized {
		return nil, fmt.Errorf("app is not initialized")
	}
	if a.started {
		return a.serverErrors, nil
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	if err := a.manager.Start(watchCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start schema watch: %w", err)
	}
	manager := a.manager
	a.cleanup.push("schema watch", func(shutdownCtx context.Context) error {
		cancel()
		return manager.Wait(shutdownCtx)
	})

	if a.srv != nil {
		a.serverErrors = startServer(a.logger, a.srv)
	}
	a.started = true
	return a.serverErrors, nil
}

// WaitForStop waits for either an OS signal or a server error.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (reason string, err error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		serverErrors = a.serverErrors
		a.stateMu.Unlock()
	}

	if stop == nil && serverErrors == nil {
		return "", fmt.Errorf("both stop and serverErrors channels are nil")
	}

	// A nil channel never receives, so one select covers every combination.
	select {
	case err := <-serverErrors:
		if err == nil {
			return "server_error", fmt.Errorf("server stopped unexpectedly")
		}
		return "server_error", fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		if a.logger != nil {
			a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		}
		return "signal", nil
	}
}
