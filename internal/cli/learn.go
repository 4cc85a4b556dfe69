package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/runnerr0/seer/internal/seer"
)

// Execute implements the go-flags Commander interface for LearnCommand.
func (c *LearnCommand) Execute(args []string) error {
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

// executeWithSeer records the load and shuts s down so the write is
// flushed before returning.
func (c *LearnCommand) executeWithSeer(s *seer.Seer) error {
	err := c.learn(s)
	if serr := s.Shutdown(); err == nil && serr != nil {
		err = fmt.Errorf("shutdown seer: %w", serr)
	}
	if err != nil {
		return explain(err)
	}

	if c.globals != nil && c.globals.JSON {
		out := map[string]interface{}{
			"learned": !c.Private,
			"reason":  c.Reason,
			"target":  c.Target,
		}
		return json.NewEncoder(os.Stdout).Encode(out)
	}
	if c.Private {
		fmt.Println("Private load, nothing recorded.")
		return nil
	}
	fmt.Printf("Learned %s %s\n", c.Reason, c.Target)
	return nil
}

func (c *LearnCommand) learn(s *seer.Seer) error {
	reason, err := seer.ParseLearnReason(c.Reason)
	if err != nil {
		return err
	}
	target, err := parseOptionalURL(c.Target)
	if err != nil {
		return err
	}
	referer, err := parseOptionalURL(c.Referer)
	if err != nil {
		return err
	}
	return s.Learn(target, referer, reason, seer.BrowsingContext{Private: c.Private})
}
