package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/stanstork/beacon/internal/models"
	"github.com/stanstork/beacon/internal/repository"
)

// ErrUnresolvable means the reference names nobody the directory can reach.
var ErrUnresolvable = errors.New("recipient cannot be resolved")

// Directory turns rule recipient references into concrete recipients.
type Directory interface {
	Resolve(ctx context.Context, ref models.RecipientRef) ([]models.Recipient, error)
}

type directory struct {
	repo repository.RecipientRepository
}

func New(repo repository.RecipientRepository) Directory {
	return &directory{repo: repo}
}

func (d *directory) Resolve(ctx context.Context, ref models.RecipientRef) ([]models.Recipient, error) {
	value := strings.TrimSpace(ref.Value)
	if value == "" {
		return nil, errors.Wrap(ErrUnresolvable, "empty recipient reference")
	}

	switch ref.Kind {
	case models.RecipientUser:
		rec, err := d.repo.Get(ctx, value)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.Wrapf(ErrUnresolvable, "user %s", value)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "look up user %s", value)
		}
		return []models.Recipient{rec}, nil

	case models.RecipientRole:
		recs, err := d.repo.ListByRole(ctx, value)
		if err != nil {
			return nil, errors.Wrapf(err, "look up role %s", value)
		}
		return recs, nil

	case models.RecipientAddress:
		rec := models.RecipientFromAddress(value)
		if rec.Email == "" && rec.Phone == "" && rec.SlackWebhook == "" {
			return nil, errors.Wrapf(ErrUnresolvable, "address %q", value)
		}
		return []models.Recipient{rec}, nil
	}
	return nil, errors.Wrap(ErrUnresolvable, fmt.Sprintf("unknown recipient kind %q", ref.Kind))
}
