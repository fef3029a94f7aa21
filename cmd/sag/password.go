package main

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"

	"sag-go/internal/app"
	"sag-go/internal/sag"
)

// envPassword supplies the container password non-interactively.
const envPassword = "SAG_PASSWORD"

const maxPasswordAttempts = 3

// readPassword returns SAG_PASSWORD when set, otherwise prompts on the
// terminal without echo.
func readPassword(prompt string) (string, error) {
	if pw, ok := os.LookupEnv(envPassword); ok {
		return pw, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("password required but stdin is not a terminal; set %s", envPassword)
	}

	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

var errEmptyPassword = errors.New("password must not be empty")

// readNewPassword asks twice and requires both entries to match. An empty
// password is rejected from either source.
func readNewPassword(prompt string) (string, error) {
	if pw, ok := os.LookupEnv(envPassword); ok {
		if pw == "" {
			return "", fmt.Errorf("%s: %w", envPassword, errEmptyPassword)
		}
		return pw, nil
	}
	pw, err := readPassword(prompt)
	if err != nil {
		return "", err
	}
	confirm, err := readPassword("Confirm: ")
	if err != nil {
		return "", err
	}
	if pw != confirm {
		return "", errors.New("passwords do not match")
	}
	if pw == "" {
		return "", errEmptyPassword
	}
	return pw, nil
}

// withPassword calls open without a password first. If the container turns
// out to be encrypted it prompts and retries open while the password is wrong.
func withPassword(path string, open func(password string) error) error {
	err := open("")
	if !errors.Is(err, sag.ErrPasswordRequired) {
		return err
	}

	attempts := maxPasswordAttempts
	if _, ok := os.LookupEnv(envPassword); ok {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		pw, promptErr := readPassword(fmt.Sprintf("Password for %s: ", path))
		if promptErr != nil {
			return promptErr
		}
		err = open(pw)
		if !errors.Is(err, sag.ErrInvalidPassword) {
			return err
		}
		if i < attempts-1 {
			fmt.Fprintln(os.Stderr, "Incorrect password, try again.")
		}
	}
	return err
}

func loadSnapshot(a *app.SagApp, path string) (*sag.Snapshot, error) {
	var snapshot *sag.Snapshot
	err := withPassword(path, func(pw string) error {
		var err error
		snapshot, err = a.LoadSnapshot(path, pw)
		return err
	})
	return snapshot, err
}

func verifySnapshot(a *app.SagApp, path string) (*sag.Statistics, error) {
	var stats *sag.Statistics
	err := withPassword(path, func(pw string) error {
		var err error
		stats, err = a.Verify(path, pw)
		return err
	})
	return stats, err
}
