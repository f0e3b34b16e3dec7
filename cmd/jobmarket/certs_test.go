// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package main

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jmtls "github.com/jobmarket/jobmarket/internal/tls"
	"github.com/jobmarket/jobmarket/pkg/errutil"
)

func TestCertsGenerate(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "", "certs", "generate", "--dir", dir, "--host", "jobs.local", "--valid-for", "48h")
	require.NoError(t, err)

	certPath := filepath.Join(dir, "api.crt")
	keyPath := filepath.Join(dir, "api.key")
	assert.Contains(t, out, "Wrote certificate "+certPath)
	assert.Contains(t, out, "Wrote private key "+keyPath)

	tlsCfg, err := jmtls.LoadServerConfig(certPath, keyPath, time.Now())
	require.NoError(t, err)
	require.Len(t, tlsCfg.Certificates, 1)

	_, err = jmtls.LoadServerConfig(certPath, keyPath, time.Now().Add(72*time.Hour))
	errutil.AssertErrorCode(t, err, "TLS_CERT_EXPIRED")
}

func TestCertsGenerate_DefaultDir(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)

	cmd := &cobra.Command{}
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	err := runCertsGenerate(cmd, &certsOptions{name: "dev", hosts: []string{"localhost"}, validFor: time.Hour})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), filepath.Join(base, "jobmarket", "certs", "dev.crt"))
	assert.FileExists(t, filepath.Join(base, "jobmarket", "certs", "dev.key"))
}

func TestCertsGenerate_InvalidValidity(t *testing.T) {
	_, err := execute(t, "", "certs", "generate", "--dir", t.TempDir(), "--valid-for", "0s")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "TLS_INVALID_VALIDITY")
}
