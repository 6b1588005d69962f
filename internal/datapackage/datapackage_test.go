package datapackage

import (
	"archive/zip"
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/atakgw/meshtak/internal/certstore"
	"software.sslmate.com/src/go-pkcs12"
)

func mustSelfSignedP12(t *testing.T, cn string) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:              time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	p12, err := pkcs12.Encode(rand.Reader, key, cert, nil, Password)
	if err != nil {
		t.Fatalf("pkcs12.Encode: %v", err)
	}
	return p12
}

func pemCA(t *testing.T) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: "meshtak-ca"},
		NotBefore:             time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:              time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

// setUpStore seeds a server identity and a client identity but, by
// design, no client CA anchors — tests opt into those explicitly so the
// "export fails without anchors" case stays realistic.
func setUpStore(t *testing.T) *certstore.Store {
	t.Helper()
	keys := certstore.NewMemKeyStore()
	store := certstore.New(keys)

	server := mustSelfSignedP12(t, "server.meshtak.local")
	if err := keys.Put(certstore.LabelBundledServerIdentity, &certstore.Blob{Data: server, Password: Password}); err != nil {
		t.Fatalf("seeding server identity: %v", err)
	}

	client := mustSelfSignedP12(t, "client.meshtak.local")
	if err := store.ImportClientIdentity(client, Password); err != nil {
		t.Fatalf("ImportClientIdentity: %v", err)
	}

	return store
}

func TestExportProducesAllFourEntries(t *testing.T) {
	store := setUpStore(t)
	if err := store.ImportClientCAAnchors(pemCA(t)); err != nil {
		t.Fatalf("ImportClientCAAnchors: %v", err)
	}

	data, err := Export(store, Config{Host: "127.0.0.1", Port: 8089})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}

	names := map[string]bool{}
	for _, f := range r.File {
		names[f.Name] = true
	}
	for _, want := range []string{entryPreferences, entryTruststore, entryClientCert, entryManifest} {
		if !names[want] {
			t.Fatalf("expected zip entry %q, got entries %v", want, names)
		}
	}
}

func TestExportPreferenceContainsConnectString(t *testing.T) {
	store := setUpStore(t)
	if err := store.ImportClientCAAnchors(pemCA(t)); err != nil {
		t.Fatalf("ImportClientCAAnchors: %v", err)
	}

	data, err := Export(store, Config{Host: "127.0.0.1", Port: 8089})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}

	var prefBytes []byte
	for _, f := range r.File {
		if f.Name != entryPreferences {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("opening preference entry: %v", err)
		}
		prefBytes, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("reading preference entry: %v", err)
		}
	}

	if !bytes.Contains(prefBytes, []byte("127.0.0.1:8089:ssl")) {
		t.Fatalf("expected connect string in preferences, got: %s", prefBytes)
	}
	if !bytes.Contains(prefBytes, []byte(Password)) {
		t.Fatalf("expected embedded password %q in preferences, got: %s", Password, prefBytes)
	}
}

func TestExportFailsWithoutClientCAAnchors(t *testing.T) {
	store := setUpStore(t)
	if _, err := Export(store, Config{Host: "127.0.0.1", Port: 8089}); err == nil {
		t.Fatalf("expected export to fail without configured client ca anchors")
	}
}
