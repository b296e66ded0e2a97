package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/cyberinferno/game-server/cacher"
	"github.com/cyberinferno/game-server/logger"
	"github.com/cyberinferno/game-server/metrics"
	"github.com/cyberinferno/game-server/protocol"
	"github.com/cyberinferno/game-server/session"
)

// Validator checks login credentials. The real credential store is an
// external collaborator; implementations backed by I/O must honor ctx.
type Validator interface {
	// Validate reports whether the credentials are acceptable. An error
	// means the check itself failed (not that the credentials are bad).
	Validate(ctx context.Context, username, password string) (bool, error)
}

// PolicyValidator is the built-in placeholder credential policy: username
// non-empty after trimming, password at least 6 characters. It accepts
// everything that passes those checks.
type PolicyValidator struct{}

// Validate implements Validator.
func (PolicyValidator) Validate(_ context.Context, username, password string) (bool, error) {
	if strings.TrimSpace(username) == "" {
		return false, nil
	}

	if len(password) < 6 {
		return false, nil
	}

	return true, nil
}

// Profile is the player-facing identity resolved at login.
type Profile struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
}

// ProfileProvider resolves a player's display profile. Lookups go through a
// cache, so providers backed by slow storage are hit at most once per TTL
// per player.
type ProfileProvider interface {
	Fetch(ctx context.Context, playerID, username string) (Profile, error)
}

// ProfileProviderFunc adapts a function to the ProfileProvider interface.
type ProfileProviderFunc func(ctx context.Context, playerID, username string) (Profile, error)

// Fetch implements ProfileProvider.
func (f ProfileProviderFunc) Fetch(ctx context.Context, playerID, username string) (Profile, error) {
	return f(ctx, playerID, username)
}

// DefaultProfileProvider derives the display name from the username, which
// keeps observable login responses identical to a deployment without a
// profile store.
func DefaultProfileProvider() ProfileProvider {
	return ProfileProviderFunc(func(_ context.Context, playerID, username string) (Profile, error) {
		return Profile{PlayerID: playerID, DisplayName: username}, nil
	})
}

// LoginHandler authenticates sessions. On success it derives the player id
// from the username ("player_" + username; callers needing a stronger
// identity scheme supply their own Validator and ProfileProvider), binds the
// player to the session (evicting any previous session for the same player)
// and acknowledges with a LoginResponse.
type LoginHandler struct {
	registry  *session.Registry
	validator Validator
	profiles  cacher.Cacher[Profile]
	provider  ProfileProvider
	cacheTTL  time.Duration

	// sem bounds concurrent credential checks so an I/O-backed validator
	// cannot stall every connection's event loop at once.
	sem *semaphore.Weighted

	log logger.Logger
}

// NewLoginHandler creates a LoginHandler.
//
// Parameters:
//   - registry: The session registry used for player binding
//   - validator: Credential checker (use PolicyValidator{} for the default)
//   - profiles: Cache in front of the profile provider
//   - provider: Profile source (use DefaultProfileProvider() for the default)
//   - maxConcurrent: Upper bound on in-flight credential checks
//   - cacheTTL: TTL for cached profiles
//   - log: Logger
//
// Returns:
//   - The new handler
func NewLoginHandler(
	registry *session.Registry,
	validator Validator,
	profiles cacher.Cacher[Profile],
	provider ProfileProvider,
	maxConcurrent int64,
	cacheTTL time.Duration,
	log logger.Logger,
) *LoginHandler {
	return &LoginHandler{
		registry:  registry,
		validator: validator,
		profiles:  profiles,
		provider:  provider,
		cacheTTL:  cacheTTL,
		sem:       semaphore.NewWeighted(maxConcurrent),
		log:       log.With(logger.Field{Key: "handler", Value: "login"}),
	}
}

// Handle implements Handler.
func (h *LoginHandler) Handle(ctx context.Context, s *session.Session, msg protocol.Message) error {
	login, ok := msg.(*protocol.Login)
	if !ok {
		return fmt.Errorf("login handler received %s", msg.Type())
	}

	h.log.Info("processing login request",
		logger.Field{Key: "username", Value: login.Username},
		logger.Field{Key: "session", Value: s.ID()})

	if !h.sem.TryAcquire(1) {
		metrics.Logins.WithLabelValues("rejected").Inc()
		s.Send(protocol.NewLoginResponse(false, "", "", "Server busy, try again later"))
		h.log.Warn("login rejected, validation capacity saturated",
			logger.Field{Key: "session", Value: s.ID()})
		return nil
	}
	defer h.sem.Release(1)

	valid, err := h.validator.Validate(ctx, login.Username, login.Password)
	if err != nil {
		h.log.Error("credential validation error",
			logger.Field{Key: "username", Value: login.Username},
			logger.Field{Key: "error", Value: err})
		h.fail(s, login.Username, "Internal server error")
		return nil
	}

	if !valid {
		h.fail(s, login.Username, "Invalid username or password")
		return nil
	}

	playerID := "player_" + login.Username

	profile, err := h.profiles.GetOrFetch(ctx, "profile:"+playerID, h.cacheTTL, func(ctx context.Context) (Profile, error) {
		return h.provider.Fetch(ctx, playerID, login.Username)
	})
	if err != nil {
		h.log.Error("profile lookup failed",
			logger.Field{Key: "player", Value: playerID},
			logger.Field{Key: "error", Value: err})
		h.fail(s, login.Username, "Internal server error")
		return nil
	}

	h.registry.BindPlayer(s, playerID, profile.DisplayName)
	s.Send(protocol.NewLoginResponse(true, playerID, profile.DisplayName, "Login successful"))
	metrics.Logins.WithLabelValues("success").Inc()

	h.log.Info("login successful",
		logger.Field{Key: "username", Value: login.Username},
		logger.Field{Key: "player", Value: playerID},
		logger.Field{Key: "session", Value: s.ID()})
	return nil
}

func (h *LoginHandler) fail(s *session.Session, username, reason string) {
	s.Send(protocol.NewLoginResponse(false, "", "", reason))
	metrics.Logins.WithLabelValues("failure").Inc()
	h.log.Warn("login failed",
		logger.Field{Key: "username", Value: username},
		logger.Field{Key: "reason", Value: reason},
		logger.Field{Key: "session", Value: s.ID()})
}
