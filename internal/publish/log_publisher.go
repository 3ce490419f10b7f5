package publish

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"
)

// LogPublisher writes posts to the log instead of a real target. The
// default when no publishing credentials are configured; lets the whole
// pipeline run end to end in dry-run form.
type LogPublisher struct {
	logger zerolog.Logger
}

var _ Publisher = (*LogPublisher)(nil)

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "log-publisher").Logger()}
}

// Publish logs the post and returns a synthetic reference.
func (p *LogPublisher) Publish(_ context.Context, text, mediaRef string) (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", Transient(fmt.Errorf("generate ref: %w", err))
	}
	ref := "dryrun-" + hex.EncodeToString(buf[:])

	p.logger.Info().
		Str("ref", ref).
		Str("text", text).
		Str("media_ref", mediaRef).
		Msg("post published (dry run)")
	return ref, nil
}
