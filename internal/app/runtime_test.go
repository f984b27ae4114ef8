package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInTestModeFollowsEnvironment(t *testing.T) {
	t.Cleanup(RefreshStartupFlags)

	for _, value := range []string{"1", "true", "TRUE"} {
		t.Setenv(testModeEnv, value)
		RefreshStartupFlags()
		assert.True(t, InTestMode(), value)
		assert.True(t, SkipStartup(ProcessAPI), value)
		assert.True(t, SkipStartup(ProcessWorker), value)
	}

	for _, value := range []string{"", "0", "nope"} {
		t.Setenv(testModeEnv, value)
		RefreshStartupFlags()
		assert.False(t, InTestMode(), value)
	}
}

func TestSkipStartupByProcess(t *testing.T) {
	t.Cleanup(RefreshStartupFlags)
	t.Setenv(testModeEnv, "")
	t.Setenv(skipProcessEnv, " Worker , ")
	RefreshStartupFlags()

	assert.True(t, SkipStartup(ProcessWorker))
	assert.False(t, SkipStartup(ProcessAPI))
	assert.False(t, InTestMode())
}
