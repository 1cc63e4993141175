package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/adapter"
	"carservice-commerce/internal/domain/ports/repository"
	"carservice-commerce/internal/infra/logging"
	"carservice-commerce/internal/infra/metrics"
)

var _ adapter.AuditSink = (*AuditSink)(nil)

// AuditSink writes audit entries from the pool so a slow or failing audit
// store never delays or fails the mutation being recorded.
type AuditSink struct {
	pool *Pool
	repo repository.AuditRepository
	log  *zerolog.Logger
}

func NewAuditSink(pool *Pool, repo repository.AuditRepository, logger *zerolog.Logger) *AuditSink {
	l := logger.With().Str("component", "AuditSink").Logger()
	return &AuditSink{pool: pool, repo: repo, log: &l}
}

func (s *AuditSink) Record(ctx context.Context, action, subjectID, actorID string) {
	entry := &model.AuditEntry{
		ID:        uuid.NewString(),
		Action:    action,
		SubjectID: subjectID,
		ActorID:   actorID,
		CreatedAt: time.Now().UTC(),
	}
	log := logging.With(ctx, s.log)
	err := s.pool.Submit(func(ctx context.Context) error {
		if err := s.repo.Save(ctx, repository.NoTX, entry); err != nil {
			metrics.IncAuditRecord("failed")
			log.Error().Err(err).Str("action", action).Str("subject_id", subjectID).Msg("audit write failed")
			return nil
		}
		metrics.IncAuditRecord("written")
		return nil
	})
	if err != nil {
		metrics.IncAuditRecord("dropped")
		log.Warn().Err(err).Str("action", action).Msg("audit entry dropped")
	}
}
