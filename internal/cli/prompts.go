package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	bridgeerr "github.com/mrz1836/dappbridge/pkg/errors"
)

const minPassphraseLength = 8

// Prompt hooks; tests replace them.
//
//nolint:gochecknoglobals // swapped in tests
var (
	promptPassphraseFn    = promptPassphrase
	promptNewPassphraseFn = promptNewPassphrase
	promptConfirmFn       = promptConfirm
)

// promptPassphrase reads a passphrase with hidden input.
func promptPassphrase(prompt string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) { //nolint:gosec,unconvert // G115: stdin fd fits in int
		return "", bridgeerr.WithSuggestion(bridgeerr.ErrPassphraseRequired,
			"set DAPPBRIDGE_STORAGE_PASSPHRASE when running without a terminal")
	}

	out(os.Stderr, "%s", prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:gosec,unconvert // G115: stdin fd fits in int
	outln(os.Stderr)                                // Add newline after hidden input
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// promptNewPassphrase asks for a passphrase twice.
func promptNewPassphrase() (string, error) {
	p, err := promptPassphraseFn("New storage passphrase: ")
	if err != nil {
		return "", err
	}
	if len(p) < minPassphraseLength {
		return "", bridgeerr.WithSuggestion(bridgeerr.ErrInvalidInput,
			fmt.Sprintf("passphrase must be at least %d characters", minPassphraseLength))
	}

	confirm, err := promptPassphraseFn("Confirm passphrase: ")
	if err != nil {
		return "", err
	}
	if p != confirm {
		return "", bridgeerr.WithSuggestion(bridgeerr.ErrInvalidInput, "passphrases do not match")
	}
	return p, nil
}

// promptConfirm asks a yes/no question on stderr; anything but yes is no.
func promptConfirm(question string) bool {
	out(os.Stderr, "%s [y/N]: ", question)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}
