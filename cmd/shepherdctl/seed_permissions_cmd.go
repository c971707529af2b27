package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/shepherdhq/shepherd/modules/iam/infrastructure/persistence"
	"github.com/shepherdhq/shepherd/modules/iam/services"
	"github.com/shepherdhq/shepherd/pkg/composables"
	"github.com/shepherdhq/shepherd/pkg/configuration"
)

func newSeedPermissionsCmd() *cobra.Command {
	var (
		tenantID string
		csvPath  string
	)

	cmd := &cobra.Command{
		Use:   "seed-permissions",
		Short: "Seed the permission catalog and apply the role matrix to a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := configuration.Use()
			if csvPath == "" {
				csvPath = conf.PermissionsCSVPath
			}

			pool, err := pgxpool.New(cmd.Context(), conf.Database.Opts)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()

			svc := services.NewPermissionService(
				persistence.NewPermissionRepository(),
				persistence.NewRoleRepository(),
			)

			ctx := composables.WithPool(cmd.Context(), pool)
			if err := svc.SeedCatalog(ctx); err != nil {
				return fmt.Errorf("seed catalog: %w", err)
			}
			fmt.Println("permission catalog seeded")

			if tenantID == "" {
				return nil
			}
			tid, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}

			// Row security keys off the tenant GUC; seeding writes tenant
			// rows, so it needs the tenant bound even without a session.
			ctx = composables.WithTenantID(ctx, tid)
			if err := svc.SeedMatrix(ctx, tid, csvPath); err != nil {
				return fmt.Errorf("seed matrix: %w", err)
			}
			fmt.Printf("role matrix from %s applied to tenant %s\n", csvPath, tid)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant UUID to apply the role matrix to (catalog only when omitted)")
	cmd.Flags().StringVar(&csvPath, "matrix", "", "Path to the role/permission matrix CSV (defaults to PERMISSIONS_CSV_PATH)")
	return cmd
}
