// SPDX-License-Identifier: GPL-3.0-or-later

package tlscfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTLSConfig(t *testing.T) {
	tests := map[string]struct {
		cfg     TLSConfig
		wantNil bool
		wantErr bool
	}{
		"empty config": {
			cfg:     TLSConfig{},
			wantNil: true,
		},
		"skip verify": {
			cfg: TLSConfig{InsecureSkipVerify: true},
		},
		"missing CA file": {
			cfg:     TLSConfig{TLSCA: "testdata/missing.pem"},
			wantErr: true,
		},
		"missing keypair": {
			cfg:     TLSConfig{TLSCert: "testdata/missing.crt", TLSKey: "testdata/missing.key"},
			wantErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			cfg, err := NewTLSConfig(test.cfg)

			if test.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if test.wantNil {
				assert.Nil(t, cfg)
			} else {
				require.NotNil(t, cfg)
				assert.Equal(t, test.cfg.InsecureSkipVerify, cfg.InsecureSkipVerify)
			}
		})
	}
}

func TestNewTLSConfig_CAWithoutCertificates(t *testing.T) {
	ca := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(ca, []byte("not a certificate\n"), 0o600))

	_, err := NewTLSConfig(TLSConfig{TLSCA: ca})

	require.Error(t, err)
	assert.Equal(t, `could not parse any PEM certificates "`+ca+`"`, err.Error())
}
