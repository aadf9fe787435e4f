package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accountsvc/internal/apperrors"
	"accountsvc/internal/models"
	"accountsvc/internal/repository/postgres"
	"accountsvc/internal/service/auth/tokenmanager"
	"accountsvc/internal/testutil"
)

func newTokenManager(t *testing.T, refreshTTL time.Duration) *tokenmanager.TokenManager {
	t.Helper()

	m, err := tokenmanager.New(tokenmanager.Config{
		AccessSecret:  "test-access-secret",
		RefreshSecret: "test-refresh-secret",
		RefreshTTL:    refreshTTL,
	})
	require.NoError(t, err)
	return m
}

func registerUser(t *testing.T, s *AuthService, username string) models.User {
	t.Helper()

	user, err := s.Register(t.Context(), RegisterParams{
		Username: username,
		Email:    username + "@example.com",
		FullName: "Test User",
		Password: "password123",
	})
	require.NoError(t, err, "user should be registered without errors")
	return user
}

func Test_AuthService(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	newService := func(t *testing.T, tx pgx.Tx) *AuthService {
		s, err := NewService(Config{}, newTokenManager(t, 0), &postgres.UserRepo{DB: tx})
		require.NoError(t, err)
		return s
	}

	t.Run("register hashes password", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			s := newService(t, tx)

			user := registerUser(t, s, "reguser")

			assert.NotEqual(t, "password123", user.HashedPassword, "password must not be stored in plain text")
			assert.Empty(t, user.RefreshToken, "registration should not issue tokens")
		})
	})

	t.Run("login", func(t *testing.T) {
		t.Run("ok by username and by email", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				s := newService(t, tx)
				created := registerUser(t, s, "loginuser")

				for _, login := range []string{"loginuser", "loginuser@example.com"} {
					user, pair, err := s.Login(t.Context(), login, "password123")

					require.NoError(t, err)
					assert.Equal(t, created.ID, user.ID)
					assert.NotEmpty(t, pair.Access.Value)
					assert.NotEmpty(t, pair.Refresh.Value)
				}
			})
		})

		t.Run("stores refresh token", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				s := newService(t, tx)
				created := registerUser(t, s, "logintoken")

				_, pair, err := s.Login(t.Context(), "logintoken", "password123")
				require.NoError(t, err)

				r := postgres.UserRepo{DB: tx}
				stored, err := r.GetUserByID(t.Context(), created.ID)
				require.NoError(t, err)
				assert.Equal(t, pair.Refresh.Value, stored.RefreshToken)
			})
		})

		t.Run("wrong password", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				s := newService(t, tx)
				registerUser(t, s, "wrongpass")

				_, _, err := s.Login(t.Context(), "wrongpass", "not-the-password")

				assert.ErrorIs(t, err, apperrors.ErrWrongPassword)
			})
		})

		t.Run("unknown user", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				s := newService(t, tx)

				_, _, err := s.Login(t.Context(), "nobody", "password123")

				assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
			})
		})
	})

	t.Run("refresh", func(t *testing.T) {
		t.Run("rotates the pair", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				s := newService(t, tx)
				created := registerUser(t, s, "rotuser")
				_, pair, err := s.Login(t.Context(), "rotuser", "password123")
				require.NoError(t, err)

				next, err := s.Refresh(t.Context(), pair.Refresh.Value)

				require.NoError(t, err)
				assert.NotEqual(t, pair.Access.Value, next.Access.Value, "access token should be fresh")
				assert.NotEqual(t, pair.Refresh.Value, next.Refresh.Value, "refresh token should be rotated")

				r := postgres.UserRepo{DB: tx}
				stored, err := r.GetUserByID(t.Context(), created.ID)
				require.NoError(t, err)
				assert.Equal(t, next.Refresh.Value, stored.RefreshToken, "stored token should be the new one")
			})
		})

		t.Run("token is single use", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				s := newService(t, tx)
				registerUser(t, s, "singleuse")
				_, pair, err := s.Login(t.Context(), "singleuse", "password123")
				require.NoError(t, err)

				_, err = s.Refresh(t.Context(), pair.Refresh.Value)
				require.NoError(t, err, "first rotation should succeed")

				_, err = s.Refresh(t.Context(), pair.Refresh.Value)
				assert.ErrorIs(t, err, apperrors.ErrRefreshTokenExpired, "second use of the same token must fail")
			})
		})

		t.Run("empty token", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				s := newService(t, tx)

				_, err := s.Refresh(t.Context(), "")

				assert.ErrorIs(t, err, apperrors.ErrNoToken)
			})
		})

		t.Run("garbage token", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				s := newService(t, tx)

				_, err := s.Refresh(t.Context(), "not a jwt at all")

				assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
			})
		})

		t.Run("expired token", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				s, err := NewService(Config{}, newTokenManager(t, time.Second), &postgres.UserRepo{DB: tx})
				require.NoError(t, err)
				registerUser(t, s, "expuser")
				_, pair, err := s.Login(t.Context(), "expuser", "password123")
				require.NoError(t, err)

				time.Sleep(1100 * time.Millisecond)

				_, err = s.Refresh(t.Context(), pair.Refresh.Value)
				assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken, "expired tokens fail signature validation, not the stored-value check")
			})
		})

		t.Run("after logout", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				s := newService(t, tx)
				created := registerUser(t, s, "loggedout")
				_, pair, err := s.Login(t.Context(), "loggedout", "password123")
				require.NoError(t, err)
				require.NoError(t, s.Logout(t.Context(), created.ID))

				_, err = s.Refresh(t.Context(), pair.Refresh.Value)

				assert.ErrorIs(t, err, apperrors.ErrRefreshTokenExpired, "logout invalidates the stored token")
			})
		})

		t.Run("token of deleted user", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				s := newService(t, tx)

				m := newTokenManager(t, 0)
				pair, err := m.GeneratePair(uuid.New())
				require.NoError(t, err)

				_, err = s.Refresh(t.Context(), pair.Refresh.Value)

				assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
			})
		})
	})

	// Uses the pool directly: pgx.Tx is not safe for concurrent use
	t.Run("concurrent rotations with the same token", func(t *testing.T) {
		s, err := NewService(Config{}, newTokenManager(t, 0), &postgres.UserRepo{DB: pg.Pool})
		require.NoError(t, err)
		registerUser(t, s, "contender")
		_, pair, err := s.Login(t.Context(), "contender", "password123")
		require.NoError(t, err)

		const workers = 4
		errs := make([]error, workers)

		var start, done sync.WaitGroup
		start.Add(1)
		done.Add(workers)
		for i := range workers {
			go func() {
				defer done.Done()
				start.Wait()
				_, errs[i] = s.Refresh(t.Context(), pair.Refresh.Value)
			}()
		}
		start.Done()
		done.Wait()

		var won int
		for _, err := range errs {
			if err == nil {
				won++
			} else {
				assert.ErrorIs(t, err, apperrors.ErrRefreshTokenExpired, "losers should see the token as superseded")
			}
		}
		assert.Equal(t, 1, won, "exactly one rotation should win")
	})

	t.Run("logout is idempotent", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			s := newService(t, tx)
			created := registerUser(t, s, "logoutuser")
			_, _, err := s.Login(t.Context(), "logoutuser", "password123")
			require.NoError(t, err)

			require.NoError(t, s.Logout(t.Context(), created.ID))
			require.NoError(t, s.Logout(t.Context(), created.ID), "second logout should succeed too")

			r := postgres.UserRepo{DB: tx}
			stored, err := r.GetUserByID(t.Context(), created.ID)
			require.NoError(t, err)
			assert.Empty(t, stored.RefreshToken)
		})
	})

	t.Run("change password", func(t *testing.T) {
		t.Run("ok", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				s := newService(t, tx)
				created := registerUser(t, s, "chpass")

				err := s.ChangePassword(t.Context(), created.ID, "password123", "newpassword456")
				require.NoError(t, err)

				_, _, err = s.Login(t.Context(), "chpass", "newpassword456")
				assert.NoError(t, err, "new password should work")

				_, _, err = s.Login(t.Context(), "chpass", "password123")
				assert.ErrorIs(t, err, apperrors.ErrWrongPassword, "old password should not")
			})
		})

		t.Run("wrong old password", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				s := newService(t, tx)
				created := registerUser(t, s, "chpassbad")

				err := s.ChangePassword(t.Context(), created.ID, "not-the-password", "newpassword456")

				assert.ErrorIs(t, err, apperrors.ErrWrongPassword)
			})
		})
	})

	t.Run("auth from request", func(t *testing.T) {
		t.Run("cookie", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				s := newService(t, tx)
				created := registerUser(t, s, "cookieuser")
				_, pair, err := s.Login(t.Context(), "cookieuser", "password123")
				require.NoError(t, err)

				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.AddCookie(&http.Cookie{Name: "accessToken", Value: pair.Access.Value})

				user, err := s.Auth(t.Context(), r)

				require.NoError(t, err)
				assert.Equal(t, created.ID, user.ID)
			})
		})

		t.Run("bearer header", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				s := newService(t, tx)
				created := registerUser(t, s, "beareruser")
				_, pair, err := s.Login(t.Context(), "beareruser", "password123")
				require.NoError(t, err)

				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.Header.Set("Authorization", "Bearer "+pair.Access.Value)

				user, err := s.Auth(t.Context(), r)

				require.NoError(t, err)
				assert.Equal(t, created.ID, user.ID)
			})
		})

		t.Run("no token", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				s := newService(t, tx)

				r := httptest.NewRequest(http.MethodGet, "/", nil)

				_, err := s.Auth(t.Context(), r)

				assert.ErrorIs(t, err, apperrors.ErrNoToken)
			})
		})

		t.Run("refresh token is not an access token", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				s := newService(t, tx)
				registerUser(t, s, "mixeduser")
				_, pair, err := s.Login(t.Context(), "mixeduser", "password123")
				require.NoError(t, err)

				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.Header.Set("Authorization", "Bearer "+pair.Refresh.Value)

				_, err = s.Auth(t.Context(), r)

				assert.ErrorIs(t, err, apperrors.ErrInvalidAccessToken)
			})
		})
	})

	t.Run("cookies", func(t *testing.T) {
		t.Run("set tokens", func(t *testing.T) {
			s, err := NewService(Config{CookieSecure: true}, newTokenManager(t, 0), &postgres.UserRepo{DB: pg.Pool})
			require.NoError(t, err)

			pair := models.TokenPair{
				Access:  models.IssuedToken{Value: "access-value", ExpiresAt: time.Now().Add(15 * time.Minute)},
				Refresh: models.IssuedToken{Value: "refresh-value", ExpiresAt: time.Now().Add(24 * time.Hour)},
			}

			w := httptest.NewRecorder()
			s.SetTokens(w, pair)

			cookies := w.Result().Cookies()
			require.Len(t, cookies, 2)

			byName := map[string]*http.Cookie{}
			for _, c := range cookies {
				byName[c.Name] = c
			}

			access := byName["accessToken"]
			require.NotNil(t, access, "access cookie should be set")
			assert.Equal(t, "access-value", access.Value)
			assert.True(t, access.HttpOnly, "auth cookies must be HttpOnly")
			assert.True(t, access.Secure)
			assert.Equal(t, http.SameSiteStrictMode, access.SameSite)
			assert.InDelta(t, 15*60, access.MaxAge, 2, "cookie lifetime should follow the token TTL")

			refresh := byName["refreshToken"]
			require.NotNil(t, refresh, "refresh cookie should be set")
			assert.Equal(t, "refresh-value", refresh.Value)
			assert.True(t, refresh.HttpOnly)
		})

		t.Run("clear tokens", func(t *testing.T) {
			s, err := NewService(Config{}, newTokenManager(t, 0), &postgres.UserRepo{DB: pg.Pool})
			require.NoError(t, err)

			w := httptest.NewRecorder()
			s.ClearTokens(w)

			cookies := w.Result().Cookies()
			require.Len(t, cookies, 2)
			for _, c := range cookies {
				assert.Empty(t, c.Value)
				assert.Equal(t, -1, c.MaxAge, "cookie %s should be expired", c.Name)
			}
		})
	})

	t.Run("get refresh from request", func(t *testing.T) {
		s, err := NewService(Config{}, newTokenManager(t, 0), &postgres.UserRepo{DB: pg.Pool})
		require.NoError(t, err)

		t.Run("cookie wins over body", func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"refreshToken":"from-body"}`))
			r.AddCookie(&http.Cookie{Name: "refreshToken", Value: "from-cookie"})

			got, err := s.GetRefresh(r)

			require.NoError(t, err)
			assert.Equal(t, "from-cookie", got)
		})

		t.Run("body fallback", func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"refreshToken":"from-body"}`))

			got, err := s.GetRefresh(r)

			require.NoError(t, err)
			assert.Equal(t, "from-body", got)
		})

		t.Run("nothing presented", func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))

			_, err := s.GetRefresh(r)

			assert.ErrorIs(t, err, apperrors.ErrNoToken)
		})
	})
}
