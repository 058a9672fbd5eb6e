package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the shared login secret",
}

// createUserCmd mirrors the original service's stubbed `user create
// <name>` CLI command. notecore has no structured accounts (a single
// shared secret gates every authenticated route, per SPEC §6), so name
// only labels the prompt; the command's real effect is setting that
// secret.
var createUserCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Set the shared login secret, prompting for a password",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreateUser,
}

func init() {
	userCmd.AddCommand(createUserCmd)
}

func runCreateUser(cmd *cobra.Command, args []string) error {
	name := args[0]
	fmt.Printf("password for %s: ", name)
	reader := bufio.NewReader(os.Stdin)
	password, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	password = strings.TrimSpace(password)
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	if err := setSecretKey(password); err != nil {
		return err
	}
	fmt.Println("secret key updated")
	return nil
}

// setSecretKey rewrites SECRET_KEY in .env.local, the override file
// config.Load always reads last, so the new secret takes effect on the
// next serve without touching the tracked .env files.
func setSecretKey(password string) error {
	const path = ".env.local"

	lines, err := readLines(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	replaced := false
	for i, line := range lines {
		if strings.HasPrefix(line, "SECRET_KEY=") {
			lines[i] = "SECRET_KEY=" + password
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, "SECRET_KEY="+password)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer f.Close()
	for _, line := range lines {
		if _, err := fmt.Fprintln(f, line); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
