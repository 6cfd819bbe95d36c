// Package policy encodes the three completion policies the supervisor
// applies to a background activity's result: whether finishing (cleanly or
// not) is itself an error.
package policy

import (
	"fmt"

	"github.com/rs/zerolog"
)

// ShouldNotComplete treats any completion of the labeled activity as fatal:
// success becomes an error ("all the X completed" is itself the bug), and a
// failure is passed through.
func ShouldNotComplete(log *zerolog.Logger, label string, err error) error {
	if err == nil {
		log.Info().Str("activity", label).Msg("all completed")
		return fmt.Errorf("policy: all the %s exited", label)
	}
	log.Error().Str("activity", label).Err(err).Msg("failure")
	return err
}

// MayComplete treats a clean completion as success and a failure as fatal.
func MayComplete(log *zerolog.Logger, label string, err error) error {
	if err == nil {
		log.Info().Str("activity", label).Msg("all completed")
		return nil
	}
	log.Error().Str("activity", label).Err(err).Msg("failure")
	return err
}

// NeverFail logs the outcome either way but never propagates an error: the
// activity is allowed to finish or fail without ending the supervisor.
func NeverFail(log *zerolog.Logger, label string, err error) error {
	if err == nil {
		log.Info().Str("activity", label).Msg("all completed")
	} else {
		log.Error().Str("activity", label).Err(err).Msg("failure")
	}
	return nil
}
