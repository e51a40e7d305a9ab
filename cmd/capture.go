package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/regrada-ai/tracemark/internal/capture"
	"github.com/regrada-ai/tracemark/internal/config"
	"github.com/regrada-ai/tracemark/internal/trace"
	"github.com/regrada-ai/tracemark/internal/util"
)

var (
	captureConfigPath string
	captureStopAfter  int
	captureMode       string
	captureSession    string
)

var captureCmd = &cobra.Command{
	Use:   "capture [-- command args...]",
	Short: "Start the capture proxy",
	Long: `Start the capture proxy and record chat completion traffic as traces.

Usage:
  tracemark capture                    # Start proxy and wait for Ctrl+C
  tracemark capture -- python app.py   # Run a command with the proxy wired in
  tracemark capture -- npm test        # Capture the traffic of a test run`,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().StringVarP(&captureConfigPath, "config", "c", "", "Path to config file (default: tracemark.yml/tracemark.yaml)")
	captureCmd.Flags().IntVar(&captureStopAfter, "stop-after", 0, "Stop after N traces are captured")
	captureCmd.Flags().StringVar(&captureMode, "mode", "", "Proxy mode: forward or reverse (default: capture.mode)")
	captureCmd.Flags().StringVar(&captureSession, "session", "", "Session name (default: a generated ID)")
}

// capturer is what runCapture needs from either proxy mode. Done unblocks
// when the proxy stops itself, which --stop-after relies on.
type capturer interface {
	Start() error
	Stop() error
	Done() <-chan struct{}
	TraceCount() int
	Session() *capture.Session
}

func runCapture(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadProjectConfig(captureConfigPath)
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}
	if cfg.Capture.Enabled != nil && !*cfg.Capture.Enabled {
		return ExitError{Code: 1, Err: fmt.Errorf("capture is disabled in config")}
	}

	mode := cfg.Capture.Mode
	if captureMode != "" {
		mode = captureMode
	}
	if mode != "forward" && mode != "reverse" {
		return ExitError{Code: 3, Err: fmt.Errorf("capture mode must be forward or reverse, got %q", mode)}
	}

	if err := os.MkdirAll(cfg.Traces.Dir, 0755); err != nil {
		return ExitError{Code: 1, Err: err}
	}

	redactor, err := capture.NewRedactor(cfg.Capture.Redact)
	if err != nil {
		return ExitError{Code: 3, Err: err}
	}

	session := capture.NewSession(mode)
	if captureSession != "" {
		// The session ID names the file check --session reads back.
		session.ID = util.Slugify(captureSession)
	}
	store := trace.NewLocalStore(cfg.Traces.Dir)

	var proxy capturer
	if mode == "forward" {
		if err := EnsureCA(cfg.Capture.CAPath); err != nil {
			return ExitError{Code: 1, Err: err}
		}
		fp, err := capture.NewForwardProxy(cfg, store, redactor, session)
		if err != nil {
			return ExitError{Code: 1, Err: err}
		}
		if captureStopAfter > 0 {
			fp.SetStopAfter(captureStopAfter)
		}
		proxy = fp
	} else {
		rp, err := capture.NewReverseProxy(cfg, store, redactor, session)
		if err != nil {
			return ExitError{Code: 3, Err: err}
		}
		if captureStopAfter > 0 {
			rp.SetStopAfter(captureStopAfter)
		}
		proxy = rp
	}

	if err := proxy.Start(); err != nil {
		return ExitError{Code: 1, Err: err}
	}

	fmt.Printf("Capture proxy listening on %s\n", cfg.Capture.Listen)
	if mode == "forward" {
		fmt.Println("Mode: forward proxy (HTTPS MITM enabled)")
		fmt.Printf("Allowlisted hosts: %v\n", cfg.Capture.AllowHosts)
	} else {
		fmt.Printf("Mode: reverse proxy for %s\n", cfg.Capture.Target)
	}

	if len(args) > 0 {
		return runWithCapture(args, mode, proxy, cfg)
	}

	fmt.Println("Press Ctrl+C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		_ = proxy.Stop()
	case <-proxy.Done():
	}

	return finishCapture(proxy, cfg)
}

// runWithCapture runs a subprocess with the proxy wired into its
// environment, then tears the proxy down once the command exits.
func runWithCapture(args []string, mode string, proxy capturer, cfg *config.ProjectConfig) error {
	fmt.Printf("Running command with capture: %v\n\n", args)

	command := exec.Command(args[0], args[1:]...)
	command.Stdout = os.Stdout
	command.Stderr = os.Stderr
	command.Stdin = os.Stdin
	command.Env = append(os.Environ(), captureEnv(mode, cfg)...)

	if err := command.Start(); err != nil {
		_ = proxy.Stop()
		return fmt.Errorf("start command: %w", err)
	}

	cmdErr := command.Wait()
	_ = proxy.Stop()

	if err := finishCapture(proxy, cfg); err != nil {
		return err
	}

	if cmdErr != nil {
		return ExitError{Code: command.ProcessState.ExitCode(), Err: fmt.Errorf("command failed: %w", cmdErr)}
	}
	return nil
}

// captureEnv builds the subprocess environment for the chosen proxy mode.
// Forward mode points the proxy variables at the listener and the TLS trust
// variables at the MITM CA; reverse mode rewrites the SDK base URLs instead.
func captureEnv(mode string, cfg *config.ProjectConfig) []string {
	if mode == "forward" {
		proxyURL := fmt.Sprintf("http://%s", cfg.Capture.Listen)
		caFile := CACertPath(cfg.Capture.CAPath)
		return []string{
			fmt.Sprintf("HTTP_PROXY=%s", proxyURL),
			fmt.Sprintf("HTTPS_PROXY=%s", proxyURL),
			fmt.Sprintf("http_proxy=%s", proxyURL),
			fmt.Sprintf("https_proxy=%s", proxyURL),
			fmt.Sprintf("SSL_CERT_FILE=%s", caFile),
			fmt.Sprintf("REQUESTS_CA_BUNDLE=%s", caFile),
			fmt.Sprintf("NODE_EXTRA_CA_CERTS=%s", caFile),
		}
	}

	baseURL := fmt.Sprintf("http://%s", cfg.Capture.Listen)
	return []string{
		fmt.Sprintf("OPENAI_BASE_URL=%s/v1", baseURL),
		fmt.Sprintf("ANTHROPIC_BASE_URL=%s", baseURL),
	}
}

func finishCapture(proxy capturer, cfg *config.ProjectConfig) error {
	session := proxy.Session()
	session.Finalize()
	path, err := session.Save(cfg.Capture.SessionDir)
	if err != nil {
		return ExitError{Code: 1, Err: fmt.Errorf("save session: %w", err)}
	}

	fmt.Printf("\nCaptured %d traces\n", proxy.TraceCount())
	if proxy.TraceCount() > 0 {
		fmt.Printf("Session saved to %s\n", path)
		fmt.Println("Run 'tracemark check' to evaluate them")
	} else {
		fmt.Println("No traces captured")
	}
	return nil
}
