// Package config holds the defaults shared by the daemon and the libraries,
// and the environment variables that override them.
package config

import (
	"cmp"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// EnvPrefix is prepended to every environment variable read by anonpoll.
	EnvPrefix = "ANONPOLL_"

	DefaultListenHost        = "0.0.0.0"
	DefaultListenPort        = 8080
	DefaultLogLevel          = "info"
	DefaultLogOutput         = "stdout"
	DefaultDBType            = "pebble"
	DefaultVerifyWorkers     = 2
	DefaultVerifyTimeout     = 30 * time.Second
	DefaultSchedulerInterval = 10 * time.Second

	// MembershipTreeDepth is the depth of the group Merkle tree. A group
	// holds up to 2^MembershipTreeDepth slots.
	MembershipTreeDepth = 20

	// MaxPollOptions is the largest number of options a poll may have.
	MaxPollOptions = 255
)

// DefaultDataDir returns $HOME/.anonpoll or a temporary directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "anonpoll")
	}
	return filepath.Join(home, ".anonpoll")
}

// ArtifactsDir returns the directory of the circuit artifact cache, read from
// ANONPOLL_ARTIFACTS_DIR and defaulting to the user cache dir.
func ArtifactsDir() string {
	if dir := os.Getenv(EnvPrefix + "ARTIFACTS_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "anonpoll-artifacts")
	}
	return filepath.Join(home, ".cache", "anonpoll-artifacts")
}

// CheckArtifactHashes is false only if ANONPOLL_CHECK_HASHES is false or 0.
func CheckArtifactHashes() bool {
	v := strings.ToLower(os.Getenv(EnvPrefix + "CHECK_HASHES"))
	return v != "false" && v != "0"
}

// Env returns the value of the ANONPOLL_<name> environment variable or def.
func Env(name, def string) string {
	return cmp.Or(os.Getenv(EnvPrefix+name), def)
}
