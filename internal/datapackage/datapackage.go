// Package datapackage builds the onboarding zip bundle handed to the UI
// collaborator: a TAK data package containing the cot_streams connection
// preference, a truststore, a client identity, and a manifest describing
// them. The zip archive is built with the standard library; the
// truststore is encoded with software.sslmate.com/src/go-pkcs12.
package datapackage

import (
	"archive/zip"
	"bytes"
	"crypto/rand"
	"encoding/xml"
	"fmt"

	"github.com/atakgw/meshtak/internal/certstore"
	"software.sslmate.com/src/go-pkcs12"
)

// Password is the fixed password embedded for every bundled certificate
// in an onboarding package, matching the peer's expectation.
const Password = "meshtastic"

const (
	entryPreferences = "preference.pref"
	entryTruststore  = "cert/truststore.p12"
	entryClientCert  = "cert/client.p12"
	entryManifest    = "manifest.xml"
)

// Config parameterizes the generated bundle's connection string.
type Config struct {
	Host string
	Port int
}

// preferenceEntry is one Java-Preferences-style <entry> in the
// cot_streams preference file.
type preferenceEntry struct {
	Key   string `xml:"key,attr"`
	Class string `xml:"class,attr"`
	Value string `xml:",chardata"`
}

type preferenceGroup struct {
	XMLName string            `xml:"preference"`
	Version string            `xml:"version,attr"`
	Name    string            `xml:"name,attr"`
	Entries []preferenceEntry `xml:"entry"`
}

type preferences struct {
	XMLName xml.Name        `xml:"preferences"`
	Group   preferenceGroup `xml:"preference"`
}

type manifestParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type manifestContent struct {
	ZipEntry string `xml:"zipEntry,attr"`
	Ignore   bool   `xml:"ignore,attr"`
}

type manifestConfiguration struct {
	Parameters []manifestParameter `xml:"Parameter"`
}

type manifestContents struct {
	Content []manifestContent `xml:"Content"`
}

type missionPackageManifest struct {
	XMLName       xml.Name               `xml:"MissionPackageManifest"`
	Version       string                 `xml:"version,attr"`
	Configuration manifestConfiguration  `xml:"Configuration"`
	Contents      manifestContents       `xml:"Contents"`
}

// Export builds the onboarding zip: the cot_streams preference, a
// truststore built from the configured client CA anchors, the active
// client identity, and a manifest tying the three together.
func Export(store *certstore.Store, cfg Config) ([]byte, error) {
	streamsXML, err := buildPreferences(cfg)
	if err != nil {
		return nil, fmt.Errorf("datapackage: building preferences: %w", err)
	}

	truststore, err := buildTruststore(store)
	if err != nil {
		return nil, fmt.Errorf("datapackage: building truststore: %w", err)
	}

	clientP12, _, err := store.ActiveClientP12()
	if err != nil {
		return nil, fmt.Errorf("datapackage: resolving client identity: %w", err)
	}

	manifestXML, err := buildManifest()
	if err != nil {
		return nil, fmt.Errorf("datapackage: building manifest: %w", err)
	}

	return buildZip(map[string][]byte{
		entryPreferences: streamsXML,
		entryTruststore:  truststore,
		entryClientCert:  clientP12,
		entryManifest:    manifestXML,
	})
}

func buildPreferences(cfg Config) ([]byte, error) {
	connectString := fmt.Sprintf("%s:%d:ssl", cfg.Host, cfg.Port)
	group := preferenceGroup{
		Version: "1",
		Name:    "cot_streams",
		Entries: []preferenceEntry{
			{Key: "count", Class: "class java.lang.Integer", Value: "1"},
			{Key: "description0", Class: "class java.lang.String", Value: "meshtak"},
			{Key: "enabled0", Class: "class java.lang.Boolean", Value: "true"},
			{Key: "connectString0", Class: "class java.lang.String", Value: connectString},
			{Key: "caLocation0", Class: "class java.lang.String", Value: entryTruststore},
			{Key: "caPassword0", Class: "class java.lang.String", Value: Password},
			{Key: "certificateLocation0", Class: "class java.lang.String", Value: entryClientCert},
			{Key: "clientPassword0", Class: "class java.lang.String", Value: Password},
		},
	}
	doc := preferences{Group: group}
	return marshalIndent(doc)
}

func buildManifest() ([]byte, error) {
	doc := missionPackageManifest{
		Version: "2",
		Configuration: manifestConfiguration{
			Parameters: []manifestParameter{
				{Name: "name", Value: "meshtak onboarding package"},
			},
		},
		Contents: manifestContents{
			Content: []manifestContent{
				{ZipEntry: entryPreferences},
				{ZipEntry: entryTruststore},
				{ZipEntry: entryClientCert},
			},
		},
	}
	return marshalIndent(doc)
}

func buildTruststore(store *certstore.Store) ([]byte, error) {
	anchors, err := store.ClientCAAnchors()
	if err != nil {
		return nil, err
	}
	if len(anchors) == 0 {
		return nil, fmt.Errorf("no client ca anchors configured")
	}
	return pkcs12.EncodeTrustStore(rand.Reader, anchors, Password)
}

func marshalIndent(v any) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	header := []byte(xml.Header)
	return append(header, body...), nil
}

func buildZip(files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	// Write in a fixed order so the resulting bundle is deterministic.
	order := []string{entryPreferences, entryTruststore, entryClientCert, entryManifest}
	for _, name := range order {
		f, err := w.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := f.Write(files[name]); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
