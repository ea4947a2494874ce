// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/bassosimone/busconn/busstub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewTCPDialFunc populates all fields from Config and the provided logger.
func TestNewTCPDialFunc(t *testing.T) {
	cfg := NewConfig()
	logger := DefaultSLogger()

	fn := NewTCPDialFunc(cfg, logger)

	require.NotNil(t, fn)
	assert.NotNil(t, fn.Dialer)
	assert.NotNil(t, fn.Logger)
	assert.NotNil(t, fn.TimeNow)
	assert.NotNil(t, fn.ErrClassifier)
}

// Call dials the candidate's host:port and returns a Transport or an error.
func TestTCPDialFunc(t *testing.T) {
	tests := []struct {
		name      string
		dialer    *busstub.FuncDialer
		candidate Candidate
		wantErr   bool
	}{
		{
			name: "successful connect",
			dialer: &busstub.FuncDialer{
				DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
					assert.Equal(t, "tcp", network)
					assert.Equal(t, "example.org:1234", address)
					return &busstub.FuncConn{
						CloseFunc:      func() error { return nil },
						LocalAddrFunc:  func() net.Addr { return &net.TCPAddr{} },
						RemoteAddrFunc: func() net.Addr { return &net.TCPAddr{} },
					}, nil
				},
			},
			candidate: Candidate{Kind: CandidateTCP, Host: "example.org", Port: "1234"},
		},
		{
			name: "family ipv4 forces tcp4",
			dialer: &busstub.FuncDialer{
				DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
					assert.Equal(t, "tcp4", network)
					return &busstub.FuncConn{
						CloseFunc:      func() error { return nil },
						LocalAddrFunc:  func() net.Addr { return &net.TCPAddr{} },
						RemoteAddrFunc: func() net.Addr { return &net.TCPAddr{} },
					}, nil
				},
			},
			candidate: Candidate{Kind: CandidateTCP, Host: "example.org", Port: "1234", Family: "ipv4"},
		},
		{
			name: "dial failure",
			dialer: &busstub.FuncDialer{
				DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
					return nil, errors.New("connection refused")
				},
			},
			candidate: Candidate{Kind: CandidateTCP, Host: "example.org", Port: "1234"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			cfg.Dialer = tt.dialer
			fn := NewTCPDialFunc(cfg, DefaultSLogger())

			transport, err := fn.Call(context.Background(), tt.candidate)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, transport)
				var ce *ConnError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, ErrKindTransport, ce.Kind)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, transport)
		})
	}
}
