package app

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// Process names understood by SkipStartup.
const (
	ProcessAPI    = "api"
	ProcessWorker = "worker"
)

const (
	testModeEnv    = "SAKINAH_TEST_MODE"
	skipProcessEnv = "SAKINAH_SKIP_PROCESSES"
)

type startupFlags struct {
	testMode bool
	skip     map[string]bool
}

var (
	startup     atomic.Pointer[startupFlags]
	startupOnce sync.Once
)

func readStartupFlags() *startupFlags {
	testMode, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(testModeEnv)))
	flags := &startupFlags{testMode: testMode, skip: make(map[string]bool)}
	for _, name := range strings.Split(os.Getenv(skipProcessEnv), ",") {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			flags.skip[name] = true
		}
	}
	return flags
}

func currentStartupFlags() *startupFlags {
	startupOnce.Do(func() {
		if startup.Load() == nil {
			startup.Store(readStartupFlags())
		}
	})
	return startup.Load()
}

// InTestMode reports whether SAKINAH_TEST_MODE holds a true value.
func InTestMode() bool {
	return currentStartupFlags().testMode
}

// SkipStartup reports whether process must return before dialling Postgres or
// Redis. Test mode skips every process; SAKINAH_SKIP_PROCESSES lists single
// ones, e.g. "worker" on nodes that only serve the POS API.
func SkipStartup(process string) bool {
	flags := currentStartupFlags()
	return flags.testMode || flags.skip[strings.ToLower(process)]
}

// RefreshStartupFlags re-reads the environment.
func RefreshStartupFlags() {
	startup.Store(readStartupFlags())
}
