package auth

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/tacusci/logging/v2"
	"github.com/tauraamui/xerror"
	"golang.org/x/term"
)

var passwordPromptReader passwordReader = stdinPasswordReader{}

type passwordReader interface {
	ReadPassword(promptText string) ([]byte, error)
}

type stdinPasswordReader struct{}

func (s stdinPasswordReader) ReadPassword(promptText string) ([]byte, error) {
	if len(promptText) > 0 {
		fmt.Printf("%s: ", promptText)
	}
	return term.ReadPassword(int(syscall.Stdin))
}

// AskForPassword prompts twice for the api password with echo off.
func AskForPassword() (string, error) {
	return askForPassword(0)
}

func askForPassword(attempts int) (string, error) {
	password, err := promptForValueEchoOff("API password")
	if err != nil {
		return "", xerror.Errorf("unable to prompt for api password: %w", err)
	}

	repeatedPassword, err := promptForValueEchoOff("Repeat API password")
	if err != nil {
		return "", xerror.Errorf("unable to prompt for api password: %w", err)
	}

	if strings.Compare(password, repeatedPassword) != 0 || len(password) == 0 {
		if logging.CurrentLoggingLevel != logging.SilentLevel {
			fmt.Println("Entered passwords are blank or do not match... Try again...")
		}
		attempts++
		if attempts >= 3 {
			return "", xerror.New("tried entering new password at least 3 times")
		}
		return askForPassword(attempts)
	}

	return password, nil
}

func promptForValueEchoOff(promptText string) (string, error) {
	valueBytes, err := passwordPromptReader.ReadPassword(promptText)
	if err != nil {
		return "", err
	}
	if logging.CurrentLoggingLevel != logging.SilentLevel {
		fmt.Println("")
	}
	return strings.TrimSpace(string(valueBytes)), nil
}
