package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/runnerr0/seer/internal/seer"
)

// Execute implements the go-flags Commander interface for ResetCommand.
func (c *ResetCommand) Execute(args []string) error {
	// Confirmation prompt unless --force
	if !c.Force {
		fmt.Println("⚠ WARNING: This will permanently delete everything seer has learned.")
		fmt.Println("  - All pages and origins")
		fmt.Println("  - All subresources and redirects")
		fmt.Println("  - All startup pages and the startup counter")
		fmt.Println()
		fmt.Print(`Type "RESET" to confirm: `)

		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			return fmt.Errorf("aborted: no input received")
		}
		if strings.TrimSpace(scanner.Text()) != "RESET" {
			return fmt.Errorf("aborted: confirmation text did not match")
		}
	}

	e, err := loadEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.logger.Sync() //nolint:errcheck

	s, err := openSeer(e, seerDeps{})
	if err != nil {
		return err
	}
	return c.executeWithSeer(s)
}

// executeWithSeer wipes the store, then reads it back. The engine only
// logs a failed wipe, so leftover rows are how a failure shows up here.
func (c *ResetCommand) executeWithSeer(s *seer.Seer) error {
	err := s.Reset()
	if err == nil {
		err = verifyEmpty(s)
	}
	if serr := s.Shutdown(); err == nil && serr != nil {
		err = fmt.Errorf("shutdown seer: %w", serr)
	}
	if err != nil {
		return explain(err)
	}

	if c.globals != nil && c.globals.JSON {
		out := map[string]interface{}{
			"reset":   true,
			"message": "all learned data deleted",
		}
		return json.NewEncoder(os.Stdout).Encode(out)
	}
	fmt.Println("Reset complete. Seer has forgotten everything.")
	return nil
}

func verifyEmpty(s *seer.Seer) error {
	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()

	stats, err := s.Stats(ctx)
	if err != nil {
		return fmt.Errorf("verify reset: %w", err)
	}
	var left []string
	for _, tc := range stats.Tables {
		if tc.Rows > 0 {
			left = append(left, fmt.Sprintf("%s (%d)", tc.Table, tc.Rows))
		}
	}
	if len(left) > 0 {
		return fmt.Errorf("reset incomplete, rows remain in %s", strings.Join(left, ", "))
	}
	return nil
}
