package permissions

// Closed permission catalog. Codes follow module.resource.action. IAM
// operations validate incoming codes against this set so typos fail loudly
// at write time instead of silently granting nothing.

const (
	// system — IAM administration
	SystemUsersRead       = "system.users.read"
	SystemUsersCreate     = "system.users.create"
	SystemUsersAssign     = "system.users.assign"
	SystemRolesRead       = "system.roles.read"
	SystemRolesCreate     = "system.roles.create"
	SystemRolesUpdate     = "system.roles.update"
	SystemRolesDelete     = "system.roles.delete"
	SystemRolesAssign     = "system.roles.assign"
	SystemPermissionsRead = "system.permissions.read"
	SystemOrgUnitsRead    = "system.org_units.read"
	SystemOrgUnitsCreate  = "system.org_units.create"
	SystemOrgUnitsUpdate  = "system.org_units.update"
	SystemOrgUnitsDelete  = "system.org_units.delete"
	SystemAuditView       = "system.audit.view"

	// registry — membership records
	RegistryPeopleRead        = "registry.people.read"
	RegistryPeopleCreate      = "registry.people.create"
	RegistryPeopleUpdate      = "registry.people.update"
	RegistryPeopleMerge       = "registry.people.merge"
	RegistryFirstTimersCreate = "registry.firsttimers.create"
	RegistryFirstTimersUpdate = "registry.firsttimers.update"
	RegistryAttendanceCreate  = "registry.attendance.create"
	RegistryAttendanceUpdate  = "registry.attendance.update"
	RegistryDepartmentsCreate = "registry.departments.create"
	RegistryDepartmentsUpdate = "registry.departments.update"
	RegistryDepartmentsDelete = "registry.departments.delete"

	// finance — giving and ledger entries
	FinanceEntriesCreate = "finance.entries.create"
	FinanceEntriesUpdate = "finance.entries.update"
	FinanceEntriesDelete = "finance.entries.delete"
	FinanceBatchesUpdate = "finance.batches.update"
	FinanceBatchesLock   = "finance.batches.lock"
	FinanceBatchesUnlock = "finance.batches.unlock"
	FinanceLookupsManage = "finance.lookups.manage"

	// cells — small-group reporting
	CellsReportsApprove = "cells.reports.approve"

	// reports — analytics surfaces
	ReportsTemplatesCreate = "reports.templates.create"
	ReportsSchedulesCreate = "reports.schedules.create"
	ReportsQueryExecute    = "reports.query.execute"
	ReportsExportsCreate   = "reports.exports.create"
	ReportsDashboardsRead  = "reports.dashboards.read"
)

var catalog = map[string]struct{}{
	SystemUsersRead:       {},
	SystemUsersCreate:     {},
	SystemUsersAssign:     {},
	SystemRolesRead:       {},
	SystemRolesCreate:     {},
	SystemRolesUpdate:     {},
	SystemRolesDelete:     {},
	SystemRolesAssign:     {},
	SystemPermissionsRead: {},
	SystemOrgUnitsRead:    {},
	SystemOrgUnitsCreate:  {},
	SystemOrgUnitsUpdate:  {},
	SystemOrgUnitsDelete:  {},
	SystemAuditView:       {},

	RegistryPeopleRead:        {},
	RegistryPeopleCreate:      {},
	RegistryPeopleUpdate:      {},
	RegistryPeopleMerge:       {},
	RegistryFirstTimersCreate: {},
	RegistryFirstTimersUpdate: {},
	RegistryAttendanceCreate:  {},
	RegistryAttendanceUpdate:  {},
	RegistryDepartmentsCreate: {},
	RegistryDepartmentsUpdate: {},
	RegistryDepartmentsDelete: {},

	FinanceEntriesCreate: {},
	FinanceEntriesUpdate: {},
	FinanceEntriesDelete: {},
	FinanceBatchesUpdate: {},
	FinanceBatchesLock:   {},
	FinanceBatchesUnlock: {},
	FinanceLookupsManage: {},

	CellsReportsApprove: {},

	ReportsTemplatesCreate: {},
	ReportsSchedulesCreate: {},
	ReportsQueryExecute:    {},
	ReportsExportsCreate:   {},
	ReportsDashboardsRead:  {},
}

// Known reports whether code is part of the closed catalog.
func Known(code string) bool {
	_, ok := catalog[code]
	return ok
}

// All returns every catalog code. Order is unspecified.
func All() []string {
	out := make([]string, 0, len(catalog))
	for code := range catalog {
		out = append(out, code)
	}
	return out
}
