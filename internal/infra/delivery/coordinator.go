package delivery

import (
	"context"
	"encoding/json"
	"log/slog"

	"genflow/internal/pkg/errs"
	"genflow/internal/usecase/readmodel"
)

// ErrNoArtifact means the stored result payload cannot yield an
// artifact url. The payload is frozen at reconciliation, so the
// condition is permanent.
var ErrNoArtifact = errs.New("job result carries no artifact url")

type Outcome string

const (
	OutcomeMedia         Outcome = "media"
	OutcomeLink          Outcome = "link"
	OutcomeUndeliverable Outcome = "undeliverable"
)

// Coordinator pushes finished artifacts to their destination channel.
// Payment for a delivered-or-not artifact is already settled; nothing
// here touches the ledger.
type Coordinator struct {
	sender ChannelSender
}

func NewCoordinator(sender ChannelSender) *Coordinator {
	return &Coordinator{sender: sender}
}

// Deliver sends the artifact media to the job's destination. When the
// media send fails it falls back to a plain text message with the
// artifact link before giving up.
func (c *Coordinator) Deliver(ctx context.Context, j *readmodel.JobRM) (Outcome, error) {
	artifactURL, caption, err := extractArtifact(j.ResultPayload)
	if err != nil {
		return "", err
	}

	mediaErr := c.sender.SendMedia(ctx, j.Destination, artifactURL, caption)
	if mediaErr == nil {
		return OutcomeMedia, nil
	}

	slog.Warn("media delivery failed, falling back to link",
		"job_id", j.ID, "destination", j.Destination, "error", mediaErr.Error())

	if err := c.sender.SendText(ctx, j.Destination, artifactURL); err != nil {
		return "", errs.Wrap(err, "fallback delivery failed")
	}
	return OutcomeLink, nil
}

func extractArtifact(resultPayload json.RawMessage) (url, caption string, err error) {
	if len(resultPayload) == 0 {
		return "", "", ErrNoArtifact
	}
	var result struct {
		URL     string `json:"url"`
		Caption string `json:"caption"`
	}
	if err := json.Unmarshal(resultPayload, &result); err != nil {
		return "", "", errs.Mark(errs.Wrap(err, "failed to decode job result payload"), ErrNoArtifact)
	}
	if result.URL == "" {
		return "", "", ErrNoArtifact
	}
	return result.URL, result.Caption, nil
}
