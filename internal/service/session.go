package service

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
	"github.com/xiaot623/gogo/fitsync/internal/observability"
	"github.com/xiaot623/gogo/fitsync/internal/policy"
	"github.com/xiaot623/gogo/fitsync/internal/repository"
)

// SessionStore owns the local session: token, roles and active role.
// Login, logout, initialize and role changes are serialized; readers get an
// immutable snapshot through Current.
type SessionStore struct {
	api    API
	store  StateStore
	policy PolicyEvaluator
	logger *zap.Logger

	ops sync.Mutex

	mu      sync.RWMutex
	session domain.Session
	changed chan struct{}

	ready     chan struct{}
	readyOnce sync.Once
}

// NewSessionStore creates a session store. pol may be nil, in which case
// remote calls are allowed exactly when the session is authenticated.
func NewSessionStore(api API, st StateStore, pol PolicyEvaluator, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{
		api:     api,
		store:   st,
		policy:  pol,
		logger:  logger.Named("session"),
		session: domain.Session{State: domain.SessionStateUnauthenticated},
		changed: make(chan struct{}),
		ready:   make(chan struct{}),
	}
}

// Current returns a snapshot of the session.
func (s *SessionStore) Current() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

// Ready is closed once Initialize has completed.
func (s *SessionStore) Ready() <-chan struct{} {
	return s.ready
}

// WaitReady blocks until Initialize has completed or ctx is done.
func (s *SessionStore) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Initialize restores the persisted session. A token rejected by the server
// is cleared; any other failure keeps it for the next start. Initialize
// always marks the store ready, and only returns storage errors.
func (s *SessionStore) Initialize(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()
	defer s.readyOnce.Do(func() { close(s.ready) })

	state, err := s.store.LoadState(ctx)
	if err != nil {
		s.logger.Error("failed to load persisted session", zap.Error(err))
		return storageError("session.initialize", err)
	}
	if state.Token == "" {
		s.logger.Info("no persisted session")
		return nil
	}

	s.publish(domain.Session{State: domain.SessionStateAuthenticating})

	profile, err := s.api.GetProfile(ctx, state.Token)
	if err == nil {
		_, err = s.establish(ctx, state.Token, profile, state.ActiveRole)
	}
	if err != nil {
		s.publish(domain.Session{State: domain.SessionStateUnauthenticated})
		if domain.IsAuth(err) {
			s.logger.Info("persisted token rejected, clearing it")
			if cerr := s.store.ClearToken(ctx); cerr != nil {
				return storageError("session.initialize", cerr)
			}
			return nil
		}
		s.logger.Warn("could not restore session, keeping token for retry", observability.ErrorFields(err)...)
		return nil
	}
	return nil
}

// Login authenticates with credentials. On failure the session is unchanged.
func (s *SessionStore) Login(ctx context.Context, email, password string) (domain.Session, error) {
	s.ops.Lock()
	defer s.ops.Unlock()
	return s.authenticate(ctx, "login", func(ctx context.Context) (*domain.AuthResult, error) {
		return s.api.Login(ctx, email, password)
	})
}

// Signup registers a new account and signs it in.
func (s *SessionStore) Signup(ctx context.Context, req domain.SignupRequest) (domain.Session, error) {
	s.ops.Lock()
	defer s.ops.Unlock()
	return s.authenticate(ctx, "signup", func(ctx context.Context) (*domain.AuthResult, error) {
		return s.api.Signup(ctx, req)
	})
}

// Logout clears the persisted state and resets the session. It is idempotent.
func (s *SessionStore) Logout(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	if err := s.store.ClearState(ctx); err != nil {
		return storageError("session.logout", err)
	}
	if s.Current().State != domain.SessionStateUnauthenticated {
		s.logger.Info("logged out")
	}
	s.publish(domain.Session{State: domain.SessionStateUnauthenticated})
	return nil
}

// Expire ends the session holding token after the server rejected it.
// Unlike Logout the persisted active role is kept so the next login
// restores it. Expiring a token that is no longer current is a no-op.
func (s *SessionStore) Expire(ctx context.Context, token string, cause error) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	cur := s.Current()
	if cur.State == domain.SessionStateUnauthenticated || cur.Token != token {
		return nil
	}
	s.logger.Info("session expired", append([]zap.Field{zap.String("user_id", cur.UserID)}, observability.ErrorFields(cause)...)...)
	s.publish(domain.Session{State: domain.SessionStateUnauthenticated})
	if err := s.store.ClearToken(context.WithoutCancel(ctx)); err != nil {
		return storageError("session.expire", err)
	}
	return nil
}

// expireOn expires sess when err is an auth failure and returns err.
func (s *SessionStore) expireOn(ctx context.Context, sess domain.Session, err error) error {
	if domain.IsAuth(err) {
		if xerr := s.Expire(ctx, sess.Token, err); xerr != nil {
			s.logger.Error("failed to expire session", zap.Error(xerr))
		}
	}
	return err
}

// SetActiveRole switches the active role. Roles the session does not hold
// are ignored.
func (s *SessionStore) SetActiveRole(ctx context.Context, role string) (domain.Session, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	cur := s.Current()
	if cur.ActiveRole == role {
		return cur, nil
	}
	decision, err := s.decide(ctx, policy.Input{
		Action:        domain.ActionSwitchRole,
		State:         cur.State,
		Roles:         cur.Roles,
		ActiveRole:    cur.ActiveRole,
		RequestedRole: role,
	})
	if err != nil {
		return cur, err
	}
	if decision != domain.DecisionAllow || !cur.HasRole(role) {
		s.logger.Debug("ignoring role switch", zap.String("role", role))
		return cur, nil
	}

	if err := s.store.SaveActiveRole(ctx, role); err != nil {
		return cur, storageError("session.set_role", err)
	}
	cur.ActiveRole = role
	s.publish(cur)
	s.logger.Info("active role changed", zap.String("role", role))
	return cur.Clone(), nil
}

// DeleteAccount deletes the remote account and logs out.
func (s *SessionStore) DeleteAccount(ctx context.Context) error {
	sess, err := s.Authorize(ctx, domain.ActionDeleteAccount)
	if err != nil {
		return err
	}
	if err := s.api.DeleteAccount(ctx, sess.Token); err != nil {
		return s.expireOn(ctx, sess, err)
	}
	s.logger.Info("account deleted", zap.String("user_id", sess.UserID))
	return s.Logout(ctx)
}

// Authorize evaluates the access policy for action against the current
// session and returns the snapshot the call should use. A deferred decision
// waits for the next session change.
func (s *SessionStore) Authorize(ctx context.Context, action domain.Action) (domain.Session, error) {
	for {
		s.mu.RLock()
		cur := s.session.Clone()
		changed := s.changed
		s.mu.RUnlock()

		decision, err := s.decide(ctx, policy.Input{
			Action:     action,
			State:      cur.State,
			Roles:      cur.Roles,
			ActiveRole: cur.ActiveRole,
		})
		if err != nil {
			return domain.Session{}, err
		}

		switch decision {
		case domain.DecisionAllow:
			if cur.Token == "" {
				return domain.Session{}, domain.ErrUnauthenticated
			}
			return cur, nil
		case domain.DecisionDefer:
			select {
			case <-changed:
			case <-ctx.Done():
				return domain.Session{}, ctx.Err()
			}
		default:
			return domain.Session{}, domain.ErrUnauthenticated
		}
	}
}

func (s *SessionStore) decide(ctx context.Context, input policy.Input) (domain.Decision, error) {
	if s.policy == nil {
		switch input.State {
		case domain.SessionStateAuthenticated:
			if input.Action == domain.ActionSwitchRole && !slices.Contains(input.Roles, input.RequestedRole) {
				return domain.DecisionDeny, nil
			}
			return domain.DecisionAllow, nil
		case domain.SessionStateAuthenticating:
			return domain.DecisionDefer, nil
		default:
			return domain.DecisionDeny, nil
		}
	}
	decision, err := s.policy.Evaluate(ctx, input)
	if err != nil {
		s.logger.Error("access policy evaluation failed", zap.String("action", string(input.Action)), zap.Error(err))
		return domain.DecisionDeny, &domain.Error{Kind: domain.ErrServer, Op: "session.authorize", Message: "access policy failed", Err: err}
	}
	return decision, nil
}

func (s *SessionStore) authenticate(ctx context.Context, op string, call func(context.Context) (*domain.AuthResult, error)) (domain.Session, error) {
	prev := s.Current()
	pending := prev.Clone()
	pending.State = domain.SessionStateAuthenticating
	s.publish(pending)

	next, err := func() (domain.Session, error) {
		res, err := call(ctx)
		if err != nil {
			return domain.Session{}, err
		}
		if res == nil || res.Token == "" {
			return domain.Session{}, domain.NewError(domain.ErrServer, op, "missing token")
		}
		profile := res.User
		if profile == nil {
			if profile, err = s.api.GetProfile(ctx, res.Token); err != nil {
				return domain.Session{}, err
			}
		}
		state, err := s.store.LoadState(ctx)
		if err != nil {
			return domain.Session{}, storageError("session."+op, err)
		}
		return s.establish(ctx, res.Token, profile, state.ActiveRole)
	}()
	if err != nil {
		s.publish(prev)
		s.logger.Info("authentication failed", append([]zap.Field{zap.String("op", op)}, observability.ErrorFields(err)...)...)
		return prev, err
	}
	return next, nil
}

// establish persists token and role for a validated profile and publishes
// the authenticated session.
func (s *SessionStore) establish(ctx context.Context, token string, profile *domain.UserProfile, persistedRole string) (domain.Session, error) {
	if profile == nil || profile.ID == "" {
		return domain.Session{}, domain.NewError(domain.ErrServer, "session", "missing user profile")
	}
	if len(profile.Roles) == 0 {
		return domain.Session{}, domain.NewError(domain.ErrServer, "session", "user profile has no roles")
	}
	role := chooseRole(profile.Roles, persistedRole)
	if err := s.store.SaveState(ctx, store.State{Token: token, ActiveRole: role}); err != nil {
		return domain.Session{}, storageError("session", err)
	}

	user := *profile
	next := domain.Session{
		Token:      token,
		UserID:     profile.ID,
		User:       &user,
		Roles:      slices.Clone(profile.Roles),
		ActiveRole: role,
		State:      domain.SessionStateAuthenticated,
	}
	s.publish(next)
	s.logger.Info("session authenticated", zap.String("user_id", next.UserID), zap.String("role", role))
	return next.Clone(), nil
}

func (s *SessionStore) publish(next domain.Session) {
	s.mu.Lock()
	s.session = next.Clone()
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

// chooseRole keeps the persisted role while the user still holds it and
// otherwise falls back to the first role.
func chooseRole(roles []string, persisted string) string {
	if persisted != "" && slices.Contains(roles, persisted) {
		return persisted
	}
	return roles[0]
}

func storageError(op string, err error) error {
	return &domain.Error{Kind: domain.ErrServer, Op: op, Message: "local state storage failed", Err: err}
}
