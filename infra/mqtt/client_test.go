package mqtt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generateCert writes a self-signed certificate used as client cert and CA.
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	caFile = filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o644))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0o644))
	return
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, tlsCfg.Certificates)
	assert.NotNil(t, tlsCfg.RootCAs)

	_, err = Config{UseTLS: true}.LoadTLSConfig()
	assert.Error(t, err)
}

func TestNewClientOptions(t *testing.T) {
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"}
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
	assert.True(t, opts.WillEnabled)
	assert.Equal(t, "peakguard/status", opts.WillTopic)
	assert.Equal(t, statusOffline, string(opts.WillPayload))
	assert.True(t, opts.WillRetained)

	opts, err = NewClientOptions(Config{Broker: "tcp://localhost:1883", Username: "u", AuthMethod: "certificate"})
	require.NoError(t, err)
	assert.Empty(t, opts.Username)
}

func TestConfigValidate(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.NoError(t, c.Validate(), "disabled config is always valid")
	c.Enabled = true
	assert.Error(t, c.Validate())
	c.Broker = "tcp://broker:1883"
	assert.NoError(t, c.Validate())
	c.QoS = 3
	assert.Error(t, c.Validate())
	c.QoS = 1
	c.UseTLS = true
	assert.Error(t, c.Validate())
}
