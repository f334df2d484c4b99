package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arancormonk/dsd-neo-sub003/internal/config"
	"github.com/arancormonk/dsd-neo-sub003/internal/frame"
)

func TestParseProtocols(t *testing.T) {
	protos, err := parseProtocols([]string{"p25p1", "dmr"})
	require.NoError(t, err)
	require.Equal(t, []frame.Protocol{frame.ProtoP25p1, frame.ProtoDMR}, protos)

	protos, err = parseProtocols(nil)
	require.NoError(t, err)
	require.Nil(t, protos, "empty list hunts everything")

	protos, err = parseProtocols([]string{"auto"})
	require.NoError(t, err)
	require.Nil(t, protos)

	_, err = parseProtocols([]string{"tetra"})
	require.Error(t, err)
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := config.NewConfig("")
	require.NoError(t, cfg.LoadFromString("[input]\nsource=udp\n[logging]\nlevel=info\n"))

	applyFlagOverrides(cfg, flagOverrides{
		inputPath:  "capture.raw",
		protocols:  "nxdn",
		noTrunking: true,
		tuneEnc:    true,
		tgHold:     52198,
		logLevel:   "debug",
	})

	require.Equal(t, "file", cfg.GetInputSource(), "a capture file forces the file source")
	require.Equal(t, "capture.raw", cfg.GetInputPath())
	require.Equal(t, []string{"nxdn"}, cfg.GetProtocols())
	require.False(t, cfg.GetTrunkingEnable())
	require.True(t, cfg.GetTuneEncCalls())
	require.False(t, cfg.GetFollowEncrypted(), "tune policy is separate from stay-on-call policy")
	require.Equal(t, uint32(52198), cfg.GetTGHold())
	require.Equal(t, "debug", cfg.GetLogLevel())
}

func TestLoadKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.csv")
	content := `# keyid,hexkey
0x0001,000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f
21,beef
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ks := frame.NewKeystore()
	require.NoError(t, loadKeys(ks, path))

	require.True(t, ks.HasKeyFor(frame.AlgAES256, 1), "32-byte key satisfies AES-256")
	require.True(t, ks.HasKeyFor(frame.AlgRC4, 21))
	require.False(t, ks.HasKeyFor(frame.AlgAES256, 21), "short key cannot serve AES")
	require.False(t, ks.HasKeyFor(frame.AlgDES, 99))
}

func TestLoadKeysRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.csv")
	require.NoError(t, os.WriteFile(path, []byte("notakey\n"), 0o644))
	require.Error(t, loadKeys(frame.NewKeystore(), path))

	require.NoError(t, os.WriteFile(path, []byte("1,zz\n"), 0o644))
	require.Error(t, loadKeys(frame.NewKeystore(), path))
}
