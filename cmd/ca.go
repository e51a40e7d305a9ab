package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/regrada-ai/tracemark/internal/ca"
	"github.com/regrada-ai/tracemark/internal/config"
)

var caConfigPath string

var caCmd = &cobra.Command{
	Use:   "ca",
	Short: "Manage the root certificate used for HTTPS capture",
	Long: `Manage the root certificate the capture proxy uses to decrypt HTTPS traffic.

The forward proxy re-signs provider certificates with this CA so that it can
read request and response bodies. Generate it once with "tracemark ca init",
then either trust it system-wide ("tracemark ca install") or let
"tracemark capture" point the child process at it via environment variables.`,
}

var caInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the root certificate",
	Long: `Generate a self-signed root certificate and private key.

Files are written under the configured CA directory (.tracemark/ca by
default). Existing certificates are never overwritten.`,
	RunE: runCAInit,
}

var caInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Trust the root certificate system-wide",
	Long: `Add the root certificate to the operating system trust store.

Needs sudo or administrator rights. The certificate on its own does not
intercept anything: traffic only flows through it while "tracemark capture"
is running and the child process honors the proxy environment variables it
sets. CI runs can skip this step entirely, since capture also exports
SSL_CERT_FILE style variables pointing at the certificate file.`,
	RunE: runCAInstall,
}

var caUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the root certificate from the trust store",
	Long: `Remove the root certificate from the operating system trust store.

Needs sudo or administrator rights. The certificate files themselves stay on
disk; delete the CA directory to remove those too.`,
	RunE: runCAUninstall,
}

var caStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show root certificate details",
	RunE:  runCAStatus,
}

func init() {
	rootCmd.AddCommand(caCmd)
	caCmd.AddCommand(caInitCmd)
	caCmd.AddCommand(caInstallCmd)
	caCmd.AddCommand(caUninstallCmd)
	caCmd.AddCommand(caStatusCmd)

	caCmd.PersistentFlags().StringVarP(&caConfigPath, "config", "c", "", "Path to config file (default: tracemark.yml/tracemark.yaml)")
}

// captureCAPath resolves the CA directory from project config.
func captureCAPath() (string, error) {
	cfg, err := config.LoadProjectConfig(caConfigPath)
	if err != nil {
		return "", ExitError{Code: 3, Err: err}
	}
	return cfg.Capture.CAPath, nil
}

func runCAInit(cmd *cobra.Command, args []string) error {
	caPath, err := captureCAPath()
	if err != nil {
		return err
	}

	if ca.Exists(caPath) {
		fmt.Printf("CA already present in %s, leaving it alone.\n", caPath)
		fmt.Printf("Delete the directory first if you want a fresh one: rm -rf %s\n", caPath)
		return nil
	}

	caObj, err := ca.Generate(caPath)
	if err != nil {
		return ExitError{Code: 1, Err: fmt.Errorf("generate CA: %w", err)}
	}

	fmt.Printf("Generated root certificate in %s\n", caPath)
	fmt.Printf("  certificate: %s\n", caObj.CertPath())
	fmt.Printf("  private key: %s\n", caObj.KeyPath())
	fmt.Println()
	fmt.Println("For local development, trust it once with: tracemark ca install")
	fmt.Println("In CI that step is unnecessary; tracemark capture exports the")
	fmt.Println("certificate to the child process through environment variables.")

	return nil
}

func runCAInstall(cmd *cobra.Command, args []string) error {
	caPath, err := captureCAPath()
	if err != nil {
		return err
	}

	fmt.Println("Adding the root certificate to the OS trust store (needs sudo)...")
	if err := ca.Install(caPath); err != nil {
		return ExitError{Code: 1, Err: fmt.Errorf("install CA: %w", err)}
	}

	fmt.Println("Root certificate trusted.")
	fmt.Println("It is only consulted while tracemark capture proxies traffic;")
	fmt.Println("remove it any time with: tracemark ca uninstall")

	return nil
}

func runCAUninstall(cmd *cobra.Command, args []string) error {
	caPath, err := captureCAPath()
	if err != nil {
		return err
	}

	fmt.Println("Removing the root certificate from the OS trust store (needs sudo)...")
	if err := ca.Uninstall(caPath); err != nil {
		return ExitError{Code: 1, Err: fmt.Errorf("uninstall CA: %w", err)}
	}

	fmt.Println("Root certificate removed from the trust store.")
	fmt.Printf("Certificate files are still in %s.\n", caPath)

	return nil
}

func runCAStatus(cmd *cobra.Command, args []string) error {
	caPath, err := captureCAPath()
	if err != nil {
		return err
	}

	if !ca.Exists(caPath) {
		fmt.Printf("No root certificate in %s.\n", caPath)
		fmt.Println("Generate one with: tracemark ca init")
		return ExitError{Code: 1, Err: fmt.Errorf("CA not found")}
	}

	caObj, err := ca.Load(caPath)
	if err != nil {
		return ExitError{Code: 1, Err: fmt.Errorf("load CA: %w", err)}
	}

	cert := caObj.Cert()
	fmt.Printf("Subject:     %s\n", cert.Subject.CommonName)
	fmt.Printf("Serial:      %s\n", cert.SerialNumber)
	fmt.Printf("Valid:       %s to %s\n", cert.NotBefore.Format("2006-01-02"), cert.NotAfter.Format("2006-01-02"))
	fmt.Printf("Certificate: %s\n", caObj.CertPath())
	fmt.Printf("Private key: %s\n", caObj.KeyPath())

	return nil
}

// EnsureCA returns an error with setup instructions when no CA exists yet.
func EnsureCA(caPath string) error {
	if !ca.Exists(caPath) {
		fmt.Fprintln(os.Stderr, "No root certificate found. Set one up with:")
		fmt.Fprintln(os.Stderr, "  tracemark ca init      # generate certificate and key")
		fmt.Fprintln(os.Stderr, "  tracemark ca install   # trust it system-wide (sudo)")
		return fmt.Errorf("CA not found at %s", caPath)
	}
	return nil
}

// CACertPath returns the certificate file under a CA directory without
// loading the key material.
func CACertPath(caPath string) string {
	return filepath.Join(caPath, ca.CertFileName)
}
