// Package ca manages the root certificate the forward capture proxy signs
// provider certificates with, including install and removal from the OS
// trust store.
package ca

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"
)

const (
	CertFileName = "tracemark-ca.pem"
	KeyFileName  = "tracemark-ca-key.pem"

	commonName = "Tracemark Root CA"
	validFor   = 10 * 365 * 24 * time.Hour
)

// CA is a root certificate plus its private key, tied to the directory the
// pair is stored in.
type CA struct {
	cert *x509.Certificate
	key  *rsa.PrivateKey
	path string
}

// Generate creates a self-signed root CA under caPath and writes the pair
// to disk before returning it.
func Generate(caPath string) (*CA, error) {
	if err := os.MkdirAll(caPath, 0755); err != nil {
		return nil, fmt.Errorf("create CA directory: %w", err)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial number: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Tracemark"},
			CommonName:   commonName,
		},
		NotBefore:             now,
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            1,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	ca := &CA{cert: cert, key: key, path: caPath}
	if err := ca.Save(); err != nil {
		return nil, err
	}
	return ca, nil
}

// Load reads an existing CA pair from caPath.
func Load(caPath string) (*CA, error) {
	certDER, err := readPEM(filepath.Join(caPath, CertFileName), "certificate")
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	keyDER, err := readPEM(filepath.Join(caPath, KeyFileName), "private key")
	if err != nil {
		return nil, err
	}
	key, err := x509.ParsePKCS1PrivateKey(keyDER)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &CA{cert: cert, key: key, path: caPath}, nil
}

func readPEM(path, what string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", what, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block in %s", what, path)
	}
	return block.Bytes, nil
}

// Save writes the pair into the CA directory. The key file is created
// owner-readable only.
func (ca *CA) Save() error {
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ca.cert.Raw})
	if err := os.WriteFile(ca.CertPath(), certPEM, 0644); err != nil {
		return fmt.Errorf("write certificate: %w", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(ca.key),
	})
	if err := os.WriteFile(ca.KeyPath(), keyPEM, 0600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	return nil
}

func (ca *CA) CertPath() string {
	return filepath.Join(ca.path, CertFileName)
}

func (ca *CA) KeyPath() string {
	return filepath.Join(ca.path, KeyFileName)
}

func (ca *CA) Cert() *x509.Certificate {
	return ca.cert
}

func (ca *CA) Key() *rsa.PrivateKey {
	return ca.key
}

// Exists reports whether both halves of the pair are present at caPath.
func Exists(caPath string) bool {
	_, certErr := os.Stat(filepath.Join(caPath, CertFileName))
	_, keyErr := os.Stat(filepath.Join(caPath, KeyFileName))
	return certErr == nil && keyErr == nil
}

// Install adds the CA certificate to the OS trust store. Most platforms
// need elevated privileges for this.
func Install(caPath string) error {
	certPath := filepath.Join(caPath, CertFileName)
	if _, err := os.Stat(certPath); os.IsNotExist(err) {
		return fmt.Errorf("CA certificate not found at %s. Run 'tracemark ca init' first", certPath)
	}

	switch runtime.GOOS {
	case "darwin":
		return runVisible("install CA (macOS)", "sudo", "security", "add-trusted-cert",
			"-d", "-r", "trustRoot", "-k", "/Library/Keychains/System.keychain", certPath)
	case "linux":
		for _, store := range linuxStores {
			if exec.Command("sudo", "cp", certPath, store.dest).Run() != nil {
				continue
			}
			if exec.Command("sudo", store.update...).Run() == nil {
				return nil
			}
		}
		return fmt.Errorf("could not install CA on Linux (tried update-ca-certificates and update-ca-trust)")
	case "windows":
		return runVisible("install CA (Windows)", "certutil", "-addstore", "-f", "Root", certPath)
	default:
		return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
}

// Uninstall removes the CA certificate from the OS trust store.
func Uninstall(caPath string) error {
	switch runtime.GOOS {
	case "darwin":
		return runVisible("uninstall CA (macOS)", "sudo", "security", "delete-certificate",
			"-c", commonName, "/Library/Keychains/System.keychain")
	case "linux":
		for _, store := range linuxStores {
			if _, err := os.Stat(store.dest); err != nil {
				continue
			}
			if exec.Command("sudo", "rm", store.dest).Run() == nil {
				_ = exec.Command("sudo", store.refresh...).Run()
				return nil
			}
		}
		return fmt.Errorf("CA certificate not found in trust store")
	case "windows":
		return runVisible("uninstall CA (Windows)", "certutil", "-delstore", "Root", commonName)
	default:
		return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
}

// linuxStores lists the trust store layouts to try in order: Debian-family
// first, then RHEL-family.
var linuxStores = []struct {
	dest    string
	update  []string
	refresh []string
}{
	{
		dest:    "/usr/local/share/ca-certificates/tracemark-ca.crt",
		update:  []string{"update-ca-certificates"},
		refresh: []string{"update-ca-certificates", "--fresh"},
	},
	{
		dest:    "/etc/pki/ca-trust/source/anchors/tracemark-ca.pem",
		update:  []string{"update-ca-trust"},
		refresh: []string{"update-ca-trust", "extract"},
	},
}

// runVisible runs a trust-store command with its output passed through, so
// sudo prompts and certutil chatter reach the user.
func runVisible(what string, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
