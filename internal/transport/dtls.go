package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/pion/dtls/v3"
)

// certLifetime is generous since the certificate only needs to outlive a
// single signaling process; it is never presented to a CA or cached.
const certLifetime = 24 * time.Hour

// serverIdentity holds the self-signed certificate the DTLS transport
// presents to every client and its SHA-256 fingerprint for the SDP answer
// (§4.3: "DTLS transport (server role = passive; SHA-256 fingerprint)").
type serverIdentity struct {
	cert        tls.Certificate
	fingerprint string // "XX:XX:...", uppercase, colon-separated
}

// newServerIdentity generates a fresh self-signed ECDSA certificate. One
// identity is shared across all peer sessions for the process lifetime.
func newServerIdentity() (*serverIdentity, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("transport: generate dtls key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("transport: generate dtls serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "voicecore"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(certLifetime),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	raw, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("transport: create dtls certificate: %w", err)
	}

	sum := sha256.Sum256(raw)
	hexParts := make([]string, len(sum))
	for i, b := range sum {
		hexParts[i] = strings.ToUpper(hex.EncodeToString([]byte{b}))
	}

	return &serverIdentity{
		cert: tls.Certificate{
			Certificate: [][]byte{raw},
			PrivateKey:  key,
		},
		fingerprint: strings.Join(hexParts, ":"),
	}, nil
}

// dtlsConfig builds the server-role (passive) DTLS configuration shared by
// every peer session.
func (id *serverIdentity) dtlsConfig() *dtls.Config {
	return &dtls.Config{
		Certificates:         []tls.Certificate{id.cert},
		InsecureSkipVerify:   true, // identity is verified out-of-band via the SDP fingerprint, per WebRTC convention
		ClientAuth:           dtls.RequireAnyClientCert,
		ConnectContextMaker: nil,
	}
}
