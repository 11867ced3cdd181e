package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"
	"homehub/pkg/utils"
	"homehub/pkg/validation"

	"go.uber.org/zap"
)

// StreamService owns the live-media session lifecycle: creation when the
// doorbell starts pushing segments, resolution of segment fetches, and
// idle-expiry via the store's touch contract.
type StreamService struct {
	store     ports.StreamSessionStore
	mediaRoot string
	logger    *zap.SugaredLogger
}

func NewStreamService(store ports.StreamSessionStore, mediaRoot string, logger *zap.SugaredLogger) *StreamService {
	return &StreamService{
		store:     store,
		mediaRoot: mediaRoot,
		logger:    logger,
	}
}

// CreateSession allocates a session directory and registers the session.
func (s *StreamService) CreateSession(ctx context.Context, userID domain.UserID, deviceID domain.DeviceID, provider domain.Provider) (*domain.StreamSession, error) {
	id := domain.StreamSessionID(utils.GenerateStreamSessionID())
	dir := filepath.Join(s.mediaRoot, string(id))

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	now := time.Now()
	session := &domain.StreamSession{
		ID:         id,
		UserID:     userID,
		DeviceID:   deviceID,
		Provider:   provider,
		Dir:        dir,
		CreatedAt:  now,
		LastActive: now,
	}

	if err := s.store.Put(ctx, session); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	s.logger.Infow("stream session created",
		"session_id", id, "user_id", userID, "device_id", deviceID)
	return session, nil
}

// Resolve maps (sessionId, filename) to a servable file path. The
// filename is validated before any filesystem access; a rejected name
// never reaches the disk. A successful resolve touches the session,
// extending its idle deadline.
func (s *StreamService) Resolve(ctx context.Context, userID domain.UserID, sessionID domain.StreamSessionID, filename string) (string, error) {
	if err := validation.ValidateStreamSessionID(string(sessionID)); err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidStreamRequest, err)
	}
	if err := validation.ValidateSegmentName(filename); err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidStreamRequest, err)
	}

	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrStreamNotFound) {
			return "", domain.ErrStreamNotFound
		}
		return "", err
	}

	// Ownership check: a stream session is only playable by the user it
	// belongs to.
	if session.UserID != userID {
		return "", domain.ErrUnauthorized
	}

	path := filepath.Join(session.Dir, filename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", domain.ErrStreamNotFound
		}
		return "", fmt.Errorf("failed to stat segment: %w", err)
	}

	if err := s.store.Touch(ctx, sessionID); err != nil && !errors.Is(err, domain.ErrStreamNotFound) {
		s.logger.Warnw("failed touching stream session", "session_id", sessionID, "error", err)
	}

	return path, nil
}

// EndSession is the user-facing teardown: only the owning user may end
// a session.
func (s *StreamService) EndSession(ctx context.Context, userID domain.UserID, sessionID domain.StreamSessionID) error {
	if err := validation.ValidateStreamSessionID(string(sessionID)); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidStreamRequest, err)
	}

	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return domain.ErrUnauthorized
	}
	return s.RemoveSession(ctx, sessionID)
}

// RemoveSession drops the session and reclaims its directory.
func (s *StreamService) RemoveSession(ctx context.Context, sessionID domain.StreamSessionID) error {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	if err := os.RemoveAll(session.Dir); err != nil {
		s.logger.Warnw("failed removing session directory", "session_id", sessionID, "error", err)
	}
	return nil
}

// ContentTypeFor derives the response content type from the filename
// suffix.
func ContentTypeFor(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".m3u8"):
		return "application/vnd.apple.mpegurl"
	case strings.HasSuffix(filename, ".ts"):
		return "video/mp2t"
	default:
		return "application/octet-stream"
	}
}
