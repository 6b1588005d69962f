package certstore

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// decodeCertPool parses every PEM CERTIFICATE block in data, in order.
// An empty result (rather than an error) is valid — ImportClientCAAnchors
// rejects that case itself so callers can distinguish "no PEM found" from
// "malformed PEM".
func decodeCertPool(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing certificate block: %w", err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}
