package searcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "relays.yaml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))
	return file
}

func TestLoadRelayConfig(t *testing.T) {
	file := writeConfig(t, `
relays:
  - name: flashbots
    url: https://relay.flashbots.test
    simulation: true
    rate_limit: 5
  - name: disabled
    url: https://disabled.flashbots.test
    disabled: true
  - name: builder
    url: https://builder.flashbots.test
`)

	config, err := LoadRelayConfig(file)
	require.NoError(t, err)
	require.Len(t, config.Relays, 3)
	require.Equal(t, "flashbots", config.Relays[0].Name)
	require.Equal(t, 5.0, config.Relays[0].RateLimit)

	signer := testSigner(t)
	relays, simulation := config.Build(signer)
	require.Len(t, relays, 2)
	require.Equal(t, "https://relay.flashbots.test", relays[0].URL())
	require.Equal(t, "https://builder.flashbots.test", relays[1].URL())
	require.Same(t, relays[0], simulation)
	require.NotNil(t, relays[0].limiter)
	require.Nil(t, relays[1].limiter)
	require.Equal(t, signer.Address(), relays[1].Signer().Address())
}

func TestLoadRelayConfig_Invalid(t *testing.T) {
	_, err := LoadRelayConfig(writeConfig(t, `
relays:
  - name: nourl
`))
	require.ErrorIs(t, err, ErrInvalidRelay)

	_, err = LoadRelayConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
