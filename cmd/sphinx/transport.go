// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"os"

	"github.com/frekui/sphinx/internal/pkg/config"
)

// dialTLS connects to the oracle. The timeout bounds connecting and the
// handshake only.
func dialTLS(c *config.Client) (io.ReadWriteCloser, error) {
	tc := &tls.Config{
		ServerName: c.Address,
		MinVersion: tls.VersionTLS12,
	}
	if c.SSLCert != "" {
		pem, err := os.ReadFile(c.SSLCert)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("no certificates in " + c.SSLCert)
		}
		tc.RootCAs = pool
	}
	if c.Insecure {
		// Development oracles with self-signed certificates.
		tc.InsecureSkipVerify = true
	}
	d := &net.Dialer{Timeout: c.Timeout}
	conn, err := tls.DialWithDialer(d, "tcp", c.Addr(), tc)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
