//go:build darwin

package config

import "os/exec"

// keychainExec reads a secret from the macOS Keychain. The server looks up
// service "planward" / account "anthropic_api_key" when the corresponding
// environment variable is unset.
func keychainExec(service, account string) ([]byte, error) {
	return exec.Command(
		"security", "find-generic-password",
		"-s", service,
		"-a", account,
		"-w",
	).Output()
}
