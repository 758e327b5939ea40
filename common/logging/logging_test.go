package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cst "healx.io/healx/constants"
)

func TestSetupLog(t *testing.T) {
	tcs := []struct {
		name     string
		verbose  bool
		expLevel log.Level
	}{
		{name: "Default", verbose: false, expLevel: log.InfoLevel},
		{name: "Verbose", verbose: true, expLevel: log.DebugLevel},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			viper.Set(cst.EnvVerbose, c.verbose)
			defer viper.Set(cst.EnvVerbose, false)
			var buf bytes.Buffer
			setupLog(&buf, "HealxTest")
			defer log.SetOutput(os.Stderr)

			assert.Equal(t, c.expLevel, log.GetLevel(), "unexpected log level")
			log.WithField("recordID", "foo").Info("hello")
			entry := map[string]interface{}{}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, "HealxTest", entry["service"])
			assert.Equal(t, "foo", entry["recordID"])
			assert.Equal(t, "hello", entry["msg"])
			assert.Contains(t, entry, "epochTimeMillis")
			assert.NotContains(t, entry, "time", "zonal timestamp must be disabled")
		})
	}
}

func TestWithFuncName(t *testing.T) {
	e := WithFuncName()
	fn, ok := e.Data[cst.LogFieldFuncName].(string)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(fn, "TestWithFuncName"), "unexpected function name %s", fn)
}
