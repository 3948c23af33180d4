package competency

import (
	"context"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	badgemodels "acclaim/internal/badge/models"
	id "acclaim/pkg/domain"
)

// Directory is the catalog lookup the recognition flow depends on.
type Directory interface {
	Classification(ctx context.Context, competencyID id.CompetencyID) (badgemodels.DomainClassification, error)
}

// Cached decorates a Directory with a Redis read-through cache. Catalog data
// changes rarely, so a short TTL keeps approvals off the upstream catalog
// without a coordinated invalidation protocol. Cache failures fall through to
// the inner directory.
type Cached struct {
	inner  Directory
	client *goredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCached wraps dir with a Redis cache.
func NewCached(dir Directory, client *goredis.Client, ttl time.Duration, logger *slog.Logger) *Cached {
	return &Cached{inner: dir, client: client, ttl: ttl, logger: logger}
}

func cacheKey(competencyID id.CompetencyID) string {
	return "acclaim:competency:classification:" + competencyID.String()
}

func (c *Cached) Classification(ctx context.Context, competencyID id.CompetencyID) (badgemodels.DomainClassification, error) {
	key := cacheKey(competencyID)
	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return badgemodels.DomainClassification(cached), nil
	}
	if !errors.Is(err, goredis.Nil) {
		c.logger.WarnContext(ctx, "competency cache read failed", "error", err.Error())
	}

	classification, err := c.inner.Classification(ctx, competencyID)
	if err != nil {
		return "", err
	}
	if setErr := c.client.Set(ctx, key, string(classification), c.ttl).Err(); setErr != nil {
		c.logger.WarnContext(ctx, "competency cache write failed", "error", setErr.Error())
	}
	return classification, nil
}
