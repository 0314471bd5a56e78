package followup

import (
	"fmt"
	"time"

	contractx "github.com/tanpawarit/goal-agent/agent/contract"
)

// Policy holds the backoff and harvesting knobs of the follow-up action.
type Policy struct {
	NudgeAfter     time.Duration `envconfig:"NUDGE_AFTER" split_words:"true" default:"48h"`
	NotNowDeferral time.Duration `envconfig:"NOT_NOW_DEFERRAL" split_words:"true" default:"336h"`
	Lookback       time.Duration `envconfig:"LOOKBACK" split_words:"true" default:"720h"`
	FetchLimit     int           `envconfig:"FETCH_LIMIT" split_words:"true" default:"5"`
}

func DefaultPolicy() Policy {
	return Policy{
		NudgeAfter:     48 * time.Hour,
		NotNowDeferral: 14 * 24 * time.Hour,
		Lookback:       30 * 24 * time.Hour,
		FetchLimit:     5,
	}
}

func (p Policy) Validate() error {
	if p.NudgeAfter <= 0 {
		return fmt.Errorf("%w: nudge_after must be > 0", contractx.ErrValidation)
	}
	if p.NotNowDeferral < 0 {
		return fmt.Errorf("%w: not_now_deferral must be >= 0", contractx.ErrValidation)
	}
	if p.Lookback <= 0 {
		return fmt.Errorf("%w: lookback must be > 0", contractx.ErrValidation)
	}
	if p.FetchLimit <= 0 {
		return fmt.Errorf("%w: fetch_limit must be > 0", contractx.ErrValidation)
	}
	return nil
}
