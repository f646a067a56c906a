package cli

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/dappbridge/internal/config"
	"github.com/mrz1836/dappbridge/internal/storage"
)

// CLI tests share cobra globals, so none of them run in parallel.

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

// resetGlobals restores every package-level flag and state variable after the test.
func resetGlobals(t *testing.T) {
	t.Helper()
	origCfg, origLogger, origFormatter, origCtx := cfg, logger, formatter, cmdCtx
	origPrompt, origNew, origConfirm := promptPassphraseFn, promptNewPassphraseFn, promptConfirmFn
	t.Cleanup(func() {
		cfg, logger, formatter, cmdCtx = origCfg, origLogger, origFormatter, origCtx
		promptPassphraseFn, promptNewPassphraseFn, promptConfirmFn = origPrompt, origNew, origConfirm
		clearFlags()
	})
	clearFlags()
	t.Setenv(config.EnvLogLevel, "off")
	t.Setenv(config.EnvStoragePassphrase, "")
}

func clearFlags() {
	homeDir, outputFormat, verbose = "", "auto", false
	forgetYes, setRPCClear, configForce = false, false, false
	accountLabel, serveListen, serveLogStderr = "", "", false
}

// runCLI executes args against store with a temporary home directory.
func runCLI(t *testing.T, store storage.Store, args ...string) (string, error) {
	t.Helper()
	return runCLIHome(t, t.TempDir(), store, args...)
}

func runCLIHome(t *testing.T, home string, store storage.Store, args ...string) (string, error) {
	t.Helper()
	resetGlobals(t)
	if store != nil {
		cmdCtx = (&CommandContext{}).WithStore(store)
	} else {
		cmdCtx = nil
	}

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--home", home}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return stdout.String(), err
}

func seededStore(t *testing.T, mutate func(doc *storage.Document)) *storage.MemoryStore {
	t.Helper()
	doc := storage.NewDocument()
	doc.AddAccount(alice, "main")
	if mutate != nil {
		mutate(doc)
	}
	return storage.NewMemoryStore(doc)
}

func loadStore(t *testing.T, s storage.Store) *storage.Document {
	t.Helper()
	doc, err := s.Load()
	require.NoError(t, err)
	return doc
}
