package cli

import (
	"fmt"

	"github.com/runnerr0/seer/internal/seer"
)

// Execute implements the go-flags Commander interface for PredictCommand.
// Without --execute the engine is wired to connectors that do nothing, so
// the command only prints what would have been done.
func (c *PredictCommand) Execute(args []string) error {
	e, err := loadEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.logger.Sync() //nolint:errcheck

	deps := seerDeps{Connector: dryRun{}, Resolver: dryRun{}}
	wait := func() {}
	if c.Live {
		connector, resolver := networkActions(e)
		deps = seerDeps{Connector: connector, Resolver: resolver}
		wait = func() {
			connector.Wait()
			resolver.Wait()
		}
	}

	s, err := openSeer(e, deps)
	if err != nil {
		return err
	}
	err = c.executeWithSeer(s)
	wait()
	return err
}

// executeWithSeer predicts, shuts s down so every action has run, and
// prints what was issued.
func (c *PredictCommand) executeWithSeer(s *seer.Seer) error {
	issued := &actionLog{}
	err := c.predict(s, issued)
	if serr := s.Shutdown(); err == nil && serr != nil {
		err = fmt.Errorf("shutdown seer: %w", serr)
	}
	if err != nil {
		return explain(err)
	}
	return issued.print(c.globals != nil && c.globals.JSON)
}

func (c *PredictCommand) predict(s *seer.Seer, obs seer.Observer) error {
	reason, err := seer.ParsePredictReason(c.Reason)
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
	return s.Predict(target, referer, reason, seer.BrowsingContext{Private: c.Private}, obs)
}
