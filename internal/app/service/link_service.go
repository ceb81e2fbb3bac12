package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sifan077/shortener/internal/app/model"
	"github.com/sifan077/shortener/internal/app/repository"
	"github.com/sifan077/shortener/internal/app/shortid"
	"go.uber.org/zap"
)

// ErrInvalidURL signals that a target is not an absolute URL.
var ErrInvalidURL = errors.New("url malformed")

// DefaultCreateAttempts is how many ids CreateLink tries before giving up on conflicts.
const DefaultCreateAttempts = 3

// LinkService defines behaviour-level operations on links.
type LinkService interface {
	CreateLink(ctx context.Context, targetURL string) (*model.Link, error)
	GetLink(ctx context.Context, id string) (*model.Link, error)
	UpdateLink(ctx context.Context, id, targetURL string) (*model.Link, error)
}

type linkService struct {
	repo     repository.LinkRepository
	attempts int
	newID    func() string
	logger   *zap.Logger
}

// NewLinkService returns a service implementation backed by the given repository.
// An id collision on create is retried with a fresh id up to attempts times.
func NewLinkService(repo repository.LinkRepository, attempts int, logger *zap.Logger) LinkService {
	if attempts < 1 {
		attempts = DefaultCreateAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &linkService{
		repo:     repo,
		attempts: attempts,
		newID:    shortid.Generate,
		logger:   logger,
	}
}

func (s *linkService) CreateLink(ctx context.Context, targetURL string) (*model.Link, error) {
	target, err := NormalizeURL(targetURL)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		link := &model.Link{ID: s.newID(), TargetURL: target}

		err := s.repo.Create(ctx, link)
		if err == nil {
			s.logger.Debug("created link", zap.String("id", link.ID), zap.String("target", link.TargetURL))
			return link, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("create link: %w", err)
		}

		s.logger.Warn("short id collision, regenerating",
			zap.String("id", link.ID),
			zap.Int("attempt", attempt),
		)
		lastErr = err
	}

	return nil, fmt.Errorf("create link after %d attempts: %w", s.attempts, lastErr)
}

func (s *linkService) GetLink(ctx context.Context, id string) (*model.Link, error) {
	link, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return link, nil
}

func (s *linkService) UpdateLink(ctx context.Context, id, targetURL string) (*model.Link, error) {
	target, err := NormalizeURL(targetURL)
	if err != nil {
		return nil, err
	}

	link, err := s.repo.Update(ctx, id, target)
	if err != nil {
		return nil, fmt.Errorf("update link: %w", err)
	}
	return link, nil
}

// NormalizeURL parses raw as an absolute URL and returns its canonical form.
// Hierarchical URLs (anything written scheme://) must carry a host.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return "", ErrInvalidURL
	}
	if u.Opaque == "" && u.Host == "" {
		return "", ErrInvalidURL
	}

	return u.String(), nil
}
