package web

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dyosync/internal/clients"
)

const (
	maxAvatarBytes     = 5 << 20
	defaultLeaderboard = 10
)

// PlatformAPI is the account-independent part of the platform API proxied by
// the dashboard.
type PlatformAPI interface {
	Profile(ctx context.Context) (clients.Profile, error)
	UpdateProfile(ctx context.Context, p clients.Profile) (clients.Profile, error)
	UploadAvatar(ctx context.Context, filename string, image io.Reader) (string, error)
	TipLeaderboard(ctx context.Context, limit int) ([]clients.LeaderboardEntry, error)
	SearchContent(ctx context.Context, query string) ([]clients.ContentItem, error)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Platform.Profile(r.Context())
	if err != nil {
		s.writePlatformError(w, "get profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req clients.Profile
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := s.deps.Platform.UpdateProfile(r.Context(), req)
	if err != nil {
		s.writePlatformError(w, "update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes)
	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, mutationResponse{Status: "error", Message: "avatar file is required"})
		return
	}
	defer file.Close()

	avatarURL, err := s.deps.Platform.UploadAvatar(r.Context(), header.Filename, file)
	if err != nil {
		s.writePlatformError(w, "upload avatar", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"avatar_url": avatarURL})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboard
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, mutationResponse{Status: "error", Message: "invalid limit"})
			return
		}
		limit = n
	}

	entries, err := s.deps.Platform.TipLeaderboard(r.Context(), limit)
	if err != nil {
		s.writePlatformError(w, "tip leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusOK, []clients.ContentItem{})
		return
	}

	items, err := s.deps.Platform.SearchContent(r.Context(), query)
	if err != nil {
		s.writePlatformError(w, "search content", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) writePlatformError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, clients.ErrUnauthorized) && s.deps.OnUnauthorized != nil {
		s.deps.OnUnauthorized(op)
	}
	s.deps.Logger.Warn("platform request failed", zap.String("op", op), zap.Error(err))
	s.writeMutationError(w, err)
}
