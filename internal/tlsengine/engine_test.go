package tlsengine

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// selfSignedPair writes a throwaway self-signed cert/key pair to temp files
// and returns their paths, for driving NewSharedContext in tests without a
// network round trip to a CA.
func selfSignedPair(t *testing.T) (certPath, keyPath string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)

	certFile, err := os.CreateTemp(t.TempDir(), "cert-*.pem")
	require.NoError(t, err)
	require.NoError(t, pem.Encode(certFile, &pem.Block{Type: "CERTIFICATE", Bytes: der}))
	require.NoError(t, certFile.Close())

	keyDER, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	keyFile, err := os.CreateTemp(t.TempDir(), "key-*.pem")
	require.NoError(t, err)
	require.NoError(t, pem.Encode(keyFile, &pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}))
	require.NoError(t, keyFile.Close())

	return certFile.Name(), keyFile.Name()
}

func TestEngine_HandshakeAndRoundTrip(t *testing.T) {
	certPath, keyPath := selfSignedPair(t)
	shared, err := NewSharedContext(SharedContextOptions{CertFilePath: certPath, KeyFilePath: keyPath})
	require.NoError(t, err)

	engine := New(shared, "test")
	engine.BeginHandshake()

	clientCfg := &tls.Config{InsecureSkipVerify: true}
	clientConn := newBioConn()
	clientTLS := tls.Client(clientConn, clientCfg)

	// Bridge client<->engine ciphertext across their respective BIOs until
	// the handshake settles, exactly mirroring what the reactor's socket
	// read/write loop would do for a real TCP connection.
	done := make(chan error, 1)
	go func() { done <- clientTLS.Handshake() }()

	deadline := time.After(5 * time.Second)
	for !engine.HandshakeCompleted() {
		select {
		case <-deadline:
			t.Fatal("handshake did not complete in time")
		default:
		}
		if out := clientConn.outbound.drain(); out != nil {
			engine.OnCiphertextReceived(out)
		}
		if out := engine.DrainCiphertext(); out != nil {
			clientConn.inbound.push(out)
		}
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, <-done)

	require.NoError(t, engine.WritePlaintext([]byte("hello")))
	// Drain any trailing handshake/app-data ciphertext to the client side.
	for i := 0; i < 50; i++ {
		if out := engine.DrainCiphertext(); out != nil {
			clientConn.inbound.push(out)
		}
		time.Sleep(time.Millisecond)
	}

	readBuf := make([]byte, 5)
	_, err = clientTLS.Read(readBuf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(readBuf))

	engine.Close()
}

func TestSharedContext_RejectsMissingFiles(t *testing.T) {
	_, err := NewSharedContext(SharedContextOptions{CertFilePath: "/nonexistent/cert.pem", KeyFilePath: "/nonexistent/key.pem"})
	require.Error(t, err)
}
