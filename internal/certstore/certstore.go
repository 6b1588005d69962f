// Package certstore is the certificate store facade: it resolves the
// active server identity and client CA trust anchors for the TLS
// server, and exposes the raw P12 bundles needed to build onboarding
// packages. Storage is pluggable behind the KeyStore interface so the
// device's protected keyring can be swapped in without touching this
// package's logic.
package certstore

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"

	"software.sslmate.com/src/go-pkcs12"
)

// Error kinds surfaced by this package, per the error-handling design.
var (
	ErrImportFailed      = errors.New("certstore: import failed")
	ErrNoIdentityInBundle = errors.New("certstore: no identity in bundle")
	ErrInvalidCertificate = errors.New("certstore: invalid certificate")
	ErrInvalidPEM        = errors.New("certstore: invalid pem")
	ErrKeyringError      = errors.New("certstore: keyring error")
)

// Label identifies one logical slot in the keyring. Importing a label
// replaces whatever was stored under it previously.
type Label string

const (
	LabelBundledServerIdentity Label = "bundled-server-identity"
	LabelCustomServerIdentity  Label = "custom-server-identity"
	LabelClientCAAnchors       Label = "client-ca-anchors"
	LabelCustomClientP12       Label = "custom-client-p12"
)

// Blob is one raw entry as stored in the keyring: the bytes as
// imported, plus the P12 password needed to re-open it (empty for PEM
// entries such as the CA anchor bundle).
type Blob struct {
	Data     []byte
	Password string
}

// KeyStore is the protected-keyring collaborator. Implementations must
// be safe to use only after the device's first unlock; this package
// treats every KeyStore error as ErrKeyringError.
type KeyStore interface {
	Get(label Label) (*Blob, bool, error)
	Put(label Label, blob *Blob) error
}

// Identity is a resolved server (or client) TLS identity: certificate
// chain plus private key, ready to hand to a tls.Config.
type Identity struct {
	Certificate tls.Certificate
	Leaf        *x509.Certificate
}

// Store is the certificate store facade.
type Store struct {
	keys KeyStore
}

// New constructs a Store over the given KeyStore backend.
func New(keys KeyStore) *Store {
	return &Store{keys: keys}
}

// ActiveServerIdentity resolves the server's TLS identity: the custom
// imported identity if one is present, otherwise the bundled default.
func (s *Store) ActiveServerIdentity() (*Identity, error) {
	if blob, ok, err := s.get(LabelCustomServerIdentity); err != nil {
		return nil, err
	} else if ok {
		return identityFromP12(blob)
	}

	blob, ok, err := s.get(LabelBundledServerIdentity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no bundled server identity provisioned", ErrNoIdentityInBundle)
	}
	return identityFromP12(blob)
}

// ClientCAAnchors returns every configured client CA certificate. TLS
// client-auth trust evaluation uses exactly this set — anchors-only,
// never the system root pool.
func (s *Store) ClientCAAnchors() ([]*x509.Certificate, error) {
	blob, ok, err := s.get(LabelClientCAAnchors)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return parsePEMCertificates(blob.Data)
}

// ActiveServerP12 returns the raw bytes and password of the active
// server identity bundle, for onboarding-package generation.
func (s *Store) ActiveServerP12() ([]byte, string, error) {
	if blob, ok, err := s.get(LabelCustomServerIdentity); err != nil {
		return nil, "", err
	} else if ok {
		return blob.Data, blob.Password, nil
	}
	blob, ok, err := s.get(LabelBundledServerIdentity)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", fmt.Errorf("%w: no bundled server identity provisioned", ErrNoIdentityInBundle)
	}
	return blob.Data, blob.Password, nil
}

// ActiveClientP12 returns the raw bytes and password of the client
// identity bundle to embed in an onboarding package.
func (s *Store) ActiveClientP12() ([]byte, string, error) {
	blob, ok, err := s.get(LabelCustomClientP12)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", fmt.Errorf("%w: no client identity provisioned", ErrNoIdentityInBundle)
	}
	return blob.Data, blob.Password, nil
}

// ImportServerIdentity validates p12 (it must decode and contain a
// private key plus at least one certificate) and stores it under
// LabelCustomServerIdentity, replacing any prior custom identity.
func (s *Store) ImportServerIdentity(p12 []byte, password string) error {
	blob := &Blob{Data: p12, Password: password}
	if _, err := identityFromP12(blob); err != nil {
		return err
	}
	return s.put(LabelCustomServerIdentity, blob)
}

// ImportClientCAAnchors validates pemBundle as a sequence of PEM
// certificates and stores it under LabelClientCAAnchors, replacing any
// prior anchor set.
func (s *Store) ImportClientCAAnchors(pemBundle []byte) error {
	certs, err := parsePEMCertificates(pemBundle)
	if err != nil {
		return err
	}
	if len(certs) == 0 {
		return fmt.Errorf("%w: no certificates found in bundle", ErrInvalidPEM)
	}
	return s.put(LabelClientCAAnchors, &Blob{Data: pemBundle})
}

// ImportClientIdentity validates and stores a client P12 bundle under
// LabelCustomClientP12, for embedding into onboarding packages.
func (s *Store) ImportClientIdentity(p12 []byte, password string) error {
	blob := &Blob{Data: p12, Password: password}
	if _, err := identityFromP12(blob); err != nil {
		return err
	}
	return s.put(LabelCustomClientP12, blob)
}

func (s *Store) get(label Label) (*Blob, bool, error) {
	blob, ok, err := s.keys.Get(label)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrKeyringError, err)
	}
	return blob, ok, nil
}

func (s *Store) put(label Label, blob *Blob) error {
	if err := s.keys.Put(label, blob); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyringError, err)
	}
	return nil
}

// identityFromP12 decodes a PKCS#12 bundle into a usable TLS identity.
func identityFromP12(blob *Blob) (*Identity, error) {
	key, cert, caCerts, err := pkcs12.DecodeChain(blob.Data, blob.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportFailed, err)
	}
	if cert == nil {
		return nil, ErrNoIdentityInBundle
	}

	chain := [][]byte{cert.Raw}
	for _, ca := range caCerts {
		chain = append(chain, ca.Raw)
	}

	return &Identity{
		Certificate: tls.Certificate{
			Certificate: chain,
			PrivateKey:  key,
			Leaf:        cert,
		},
		Leaf: cert,
	}, nil
}

// parsePEMCertificates decodes every CERTIFICATE block in data.
func parsePEMCertificates(data []byte) ([]*x509.Certificate, error) {
	pool, err := decodeCertPool(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPEM, err)
	}
	return pool, nil
}
