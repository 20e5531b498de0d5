package licensecheck

import (
	"context"
	"time"

	"github.com/information-sharing-networks/audiobook-license/app/internal/events"
	"github.com/information-sharing-networks/audiobook-license/app/internal/manifest"
)

const RightsCheckName = "FeedbooksRightsCheck"

// RightsCheck verifies the current time falls inside the manifest rights window.
// Both bounds are inclusive and either may be absent.
type RightsCheck struct {
	now func() time.Time
}

// NewRightsCheck creates a RightsCheck reading the time from now. A nil now uses time.Now.
func NewRightsCheck(now func() time.Time) *RightsCheck {
	if now == nil {
		now = time.Now
	}
	return &RightsCheck{now: now}
}

func (c *RightsCheck) Name() string { return RightsCheckName }

func (c *RightsCheck) Execute(_ context.Context, m *manifest.Manifest, emit events.Sink) Verdict {
	emit.Emit(RightsCheckName, "Started rights check…")

	rights, ok := m.Rights()
	if !ok || rights == nil {
		const message = "No rights information was provided."
		emit.Emit(RightsCheckName, "Check is not applicable: "+message)
		return Verdict{Kind: NotApplicable, ShortName: RightsCheckName, Message: message}
	}

	now := c.now()

	if rights.ValidStart != nil && now.Before(*rights.ValidStart) {
		const message = "The current time precedes the start of the rights date range."
		emit.Emit(RightsCheckName, "Check failed: "+message)
		return Verdict{Kind: Failed, ShortName: RightsCheckName, Message: message}
	}

	if rights.ValidEnd != nil && now.After(*rights.ValidEnd) {
		const message = "The current time exceeds the end of the rights date range."
		emit.Emit(RightsCheckName, "Check failed: "+message)
		return Verdict{Kind: Failed, ShortName: RightsCheckName, Message: message}
	}

	const message = "The current time is within the specified date range."
	emit.Emit(RightsCheckName, "Check succeeded: "+message)
	return Verdict{Kind: Succeeded, ShortName: RightsCheckName, Message: message}
}
