package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultReadyTimeout = 30 * time.Second

var ErrServerNotReady = errors.New("server did not become ready")

// supervisor owns the server child process.
type supervisor struct {
	args      []string
	readyFile string

	mu      sync.Mutex
	cmd     *exec.Cmd
	exited  chan struct{}
	lastErr error
}

func (s *supervisor) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil && s.running() {
		return nil
	}
	os.Remove(s.readyFile)

	cmd := exec.Command(os.Args[0], s.args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "start server process")
	}
	log.WithField("pid", cmd.Process.Pid).Info("Server started")

	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		log.WithError(err).Info("Server exited")
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		close(exited)
	}()
	s.cmd, s.exited = cmd, exited
	return nil
}

// running must be called with mu held.
func (s *supervisor) running() bool {
	select {
	case <-s.exited:
		return false
	default:
		return true
	}
}

func (s *supervisor) stop() {
	s.mu.Lock()
	cmd, exited := s.cmd, s.exited
	s.mu.Unlock()
	if cmd == nil {
		return
	}
	cmd.Process.Signal(os.Interrupt)
	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		cmd.Process.Kill()
		<-exited
	}
}

func (s *supervisor) status() fiber.Map {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return fiber.Map{"running": false}
	}
	m := fiber.Map{"running": s.running(), "pid": s.cmd.Process.Pid}
	if s.lastErr != nil {
		m["error"] = s.lastErr.Error()
	}
	return m
}

// waitReady polls for the marker file the server writes once it accepts
// clients.
func waitReady(ctx context.Context, path string, exited <-chan struct{}, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.WithMessage(ErrServerNotReady, ctx.Err().Error())
		case <-exited:
			return errors.WithMessage(ErrServerNotReady, "server exited")
		case <-ticker.C:
		}
	}
}

func runLauncher(cmd *cobra.Command, _ []string) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	port, _ := cmd.Flags().GetInt("port")
	readyTimeout, _ := cmd.Flags().GetDuration("ready-timeout")

	dir, err := os.MkdirTemp("", "kartlobby")
	if err != nil {
		return errors.Wrap(err, "create ready file dir")
	}
	defer os.RemoveAll(dir)
	readyFile := filepath.Join(dir, "ready")

	args := []string{"server", "--ready-file", readyFile}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	sup := &supervisor{args: args, readyFile: readyFile}
	if err := sup.start(); err != nil {
		return err
	}
	defer sup.stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup.mu.Lock()
	exited := sup.exited
	sup.mu.Unlock()
	if err := waitReady(ctx, readyFile, exited, readyTimeout); err != nil {
		return err
	}
	log.Info("Server is ready")

	app := newDashboard(sup, "http://"+cfg.Server.Control)
	go func() {
		addr := ":" + strconv.Itoa(port)
		log.WithField("addr", addr).Info("Dashboard running")
		if err := app.Listen(addr); err != nil {
			log.WithError(err).Error("Dashboard stopped")
		}
	}()

	<-ctx.Done()
	return app.ShutdownWithTimeout(5 * time.Second)
}

func newDashboard(sup *supervisor, control string) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	proxy := newProxy(control)

	app.Static("/", "./web")

	app.Get("/api/server/status", func(c *fiber.Ctx) error {
		return c.JSON(sup.status())
	})
	app.Post("/api/server/stop", func(c *fiber.Ctx) error {
		sup.stop()
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Post("/api/server/start", func(c *fiber.Ctx) error {
		if err := sup.start(); err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString(err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Get("/api/lobby", proxy.to(fiber.MethodGet, "/status"))
	app.Get("/api/players", proxy.to(fiber.MethodGet, "/players"))
	app.Get("/api/votes", proxy.to(fiber.MethodGet, "/votes"))
	app.Post("/api/selection/start", proxy.to(fiber.MethodPost, "/selection/start"))
	return app
}

type proxy struct {
	base   string
	client *retryablehttp.Client
}

func newProxy(base string) *proxy {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 2
	client.RetryWaitMin = 50 * time.Millisecond
	client.RetryWaitMax = 200 * time.Millisecond
	return &proxy{base: base, client: client}
}

// to forwards the request body and headers to the control API.
func (p *proxy) to(method, path string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req, err := retryablehttp.NewRequestWithContext(c.UserContext(), method, p.base+path, bytes.NewReader(c.Body()))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString(err.Error())
		}
		c.Request().Header.VisitAll(func(key, value []byte) {
			req.Header.Set(string(key), string(value))
		})

		resp, err := p.client.Do(req)
		if err != nil {
			return c.Status(fiber.StatusBadGateway).SendString(err.Error())
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return c.Status(fiber.StatusBadGateway).SendString(err.Error())
		}
		c.Set(fiber.HeaderContentType, resp.Header.Get(fiber.HeaderContentType))
		return c.Status(resp.StatusCode).Send(body)
	}
}
