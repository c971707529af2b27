package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/assignment"
	"github.com/shepherdhq/shepherd/modules/iam/services"
	"github.com/shepherdhq/shepherd/pkg/composables"
)

// stubAssignments serves only the coarse permission union the session needs.
type stubAssignments struct {
	assignment.Repository
	codes []string
}

func (s stubAssignments) PermissionCodes(context.Context, uuid.UUID, uuid.UUID) ([]string, error) {
	return s.codes, nil
}

// stubTx satisfies pgx.Tx so session binding, which nests a transaction
// around its union query, can run without a database.
type stubTx struct{}

func (stubTx) Begin(context.Context) (pgx.Tx, error) { return stubTx{}, nil }
func (stubTx) Commit(context.Context) error          { return nil }
func (stubTx) Rollback(context.Context) error        { return nil }
func (stubTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (stubTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (stubTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (stubTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not implemented")
}
func (stubTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (stubTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (stubTx) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (stubTx) Conn() *pgx.Conn                                  { return nil }

func TestHeaderPrincipalResolver(t *testing.T) {
	tenantID := uuid.New()
	userID := uuid.New()

	r := httptest.NewRequest(http.MethodGet, "/iam/api/org-units", nil)
	r.Header.Set("X-User-Id", userID.String())
	r.Header.Set("X-Tenant-Id", tenantID.String())

	principal, err := HeaderPrincipalResolver{}.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, tenantID, principal.TenantID)
	assert.Equal(t, userID, principal.UserID)

	r.Header.Set("X-User-Id", "not-a-uuid")
	_, err = HeaderPrincipalResolver{}.Resolve(r)
	require.ErrorIs(t, err, services.ErrUnauthenticated)
}

func TestAuthorize_BindsSession(t *testing.T) {
	tenantID := uuid.New()
	userID := uuid.New()
	sessions := services.NewSessionService(stubAssignments{codes: []string{"system.org_units.read"}})

	var seen *composables.Session
	handler := Authorize(HeaderPrincipalResolver{}, sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = composables.UseSession(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodGet, "/iam/api/org-units", nil)
	r = r.WithContext(composables.WithTx(r.Context(), stubTx{}))
	r.Header.Set("X-User-Id", userID.String())
	r.Header.Set("X-Tenant-Id", tenantID.String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, tenantID, seen.TenantID)
	assert.Equal(t, userID, seen.UserID)
	assert.True(t, seen.HasPermission("system.org_units.read"))
}

func TestAuthorize_MissingHeadersRejected(t *testing.T) {
	sessions := services.NewSessionService(stubAssignments{})
	handler := Authorize(HeaderPrincipalResolver{}, sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run without a principal")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/iam/api/org-units", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthorize_RequestedTenantMustMatch(t *testing.T) {
	tenantID := uuid.New()
	sessions := services.NewSessionService(stubAssignments{})
	handler := Authorize(HeaderPrincipalResolver{}, sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run on tenant mismatch")
	}))

	r := httptest.NewRequest(http.MethodGet, "/iam/api/org-units", nil)
	r.Header.Set("X-User-Id", uuid.New().String())
	r.Header.Set("X-Tenant-Id", tenantID.String())
	r.Header.Set("X-Requested-Tenant", uuid.New().String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
