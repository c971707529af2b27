package composables

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/shepherdhq/shepherd/pkg/configuration"
)

// ApplyTenantRLS populates the Postgres session variables consumed by the
// row-level-security policies: app.tenant_id, app.user_id and app.perms.
// set_config(..., true) scopes them to the enclosing transaction. The
// application-level permission checks remain authoritative; RLS is defense
// in depth and is skipped entirely unless RLS_ENFORCE=enforce.
func ApplyTenantRLS(ctx context.Context, tx pgx.Tx) error {
	if configuration.Use().RLSEnforce != "enforce" {
		return nil
	}
	tenantID, err := UseTenantID(ctx)
	if err != nil {
		return fmt.Errorf("rls requires tenant in context: %w", err)
	}
	_, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID.String())
	if err != nil {
		return fmt.Errorf("failed to set rls tenant context: %w", err)
	}

	if userID, err := UseUserID(ctx); err == nil {
		_, err = tx.Exec(ctx, "SELECT set_config('app.user_id', $1, true)", userID.String())
		if err != nil {
			return fmt.Errorf("failed to set rls user context: %w", err)
		}
	}

	perms := "{}"
	if session, err := UseSession(ctx); err == nil {
		perms = permsArrayLiteral(session.PermissionCodes())
	}
	_, err = tx.Exec(ctx, "SELECT set_config('app.perms', $1, true)", perms)
	if err != nil {
		return fmt.Errorf("failed to set rls permissions context: %w", err)
	}
	return nil
}

// permsArrayLiteral renders permission codes as a Postgres text[] literal.
// Codes come from the validated catalog so only quoting is required.
func permsArrayLiteral(codes []string) string {
	if len(codes) == 0 {
		return "{}"
	}
	quoted := make([]string, len(codes))
	for i, code := range codes {
		quoted[i] = `"` + code + `"`
	}
	return "{" + strings.Join(quoted, ",") + "}"
}
