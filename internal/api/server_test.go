// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package api_test

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobmarket/jobmarket/internal/api"
	jmtls "github.com/jobmarket/jobmarket/internal/tls"
)

func TestServerStartStop(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv := api.NewServer("127.0.0.1:0", handler, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Empty(t, srv.Addr())

	errCh, err := srv.Start()
	require.NoError(t, err)

	_, err = srv.Start()
	require.Error(t, err, "second start should fail")

	resp, err := http.Get("http://" + srv.Addr() + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, srv.Stop(ctx), "stop is idempotent")

	select {
	case err, ok := <-errCh:
		assert.False(t, ok && err != nil, "unexpected serve error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("error channel not closed after stop")
	}
}

func TestServerTLS(t *testing.T) {
	kp, err := jmtls.GenerateSelfSigned([]string{"127.0.0.1"}, time.Hour)
	require.NoError(t, err)
	certPath, keyPath, err := jmtls.Save(t.TempDir(), "api", kp)
	require.NoError(t, err)
	tlsCfg, err := jmtls.LoadServerConfig(certPath, keyPath, time.Now())
	require.NoError(t, err)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	srv := api.NewServer("127.0.0.1:0", handler, slog.New(slog.NewTextHandler(io.Discard, nil)), api.WithTLS(tlsCfg))
	_, err = srv.Start()
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	roots := x509.NewCertPool()
	roots.AddCert(kp.Certificate)
	client := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12},
		},
	}

	resp, err := client.Get("https://" + srv.Addr() + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	plain, err := http.Get("http://" + srv.Addr() + "/")
	require.NoError(t, err)
	_ = plain.Body.Close()
	assert.Equal(t, http.StatusBadRequest, plain.StatusCode, "plain HTTP is refused")
}
