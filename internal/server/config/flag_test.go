package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_parseFlags_OverridesDefaults(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	os.Args = []string{"testbin",
		"-a", ":9090",
		"-d", "postgres://other/teamcodes",
		"-r", "localhost:6379",
		"-s", "flagsecret",
		"-t", "45",
		"-i", "20",
	}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseFlags(cfg)

	assert.Equal(t, ":9090", cfg.EndpointAddrHTTP)
	assert.Equal(t, "postgres://other/teamcodes", cfg.DatabaseDSN)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "flagsecret", cfg.SessionSecretKey)
	assert.Equal(t, 45*time.Minute, cfg.SessionValidityDuration)
	assert.Equal(t, 20*time.Second, cfg.LinkRecheckInterval)
}

func Test_parseFlags_IgnoresForeignFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	os.Args = []string{"testbin", "-z", "junk", "-a", ":7070"}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseFlags(cfg)

	assert.Equal(t, ":7070", cfg.EndpointAddrHTTP)
	assert.Equal(t, "secretKey", cfg.SessionSecretKey)
}
