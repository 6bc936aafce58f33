package sandbox

import "fmt"

// fixedClockUnixTime is the epoch every sandbox run's clock facade is
// pinned to, so two runs of the same bundle see the same "now".
const fixedClockUnixTime int64 = 1700000000

// DeterministicEnv builds the environment variables injected into a sandbox
// container so the generated test suite sees a fixed clock and RNG seed
// instead of the host's, per spec §4.5: sandbox test runs must be
// reproducible across attempts and across hosts.
func DeterministicEnv(seed int64, fixedUnixTime int64) []string {
	return []string{
		fmt.Sprintf("BUILDER_RANDOM_SEED=%d", seed),
		fmt.Sprintf("BUILDER_FIXED_UNIX_TIME=%d", fixedUnixTime),
		"PYTHONHASHSEED=0",
		"TZ=UTC",
	}
}
