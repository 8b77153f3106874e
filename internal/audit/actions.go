// Package audit records administrative and security-relevant actions and ships
// them to the audit trail service, either immediately or in batches.
package audit

type Action string

const (
	ActionUserCreate        Action = "user.create"
	ActionUserUpdate        Action = "user.update"
	ActionUserDelete        Action = "user.delete"
	ActionUserView          Action = "user.view"
	ActionUserBulkDelete    Action = "user.bulk_delete"
	ActionUserBulkUpdate    Action = "user.bulk_update"
	ActionUserRoleChange    Action = "user.role_change"
	ActionUserActivate      Action = "user.activate"
	ActionUserDeactivate    Action = "user.deactivate"
	ActionUserPasswordReset Action = "user.password_reset"
	ActionUserExport        Action = "user.export"

	ActionAuthLogin              Action = "auth.login"
	ActionAuthLogout             Action = "auth.logout"
	ActionAuthLoginFailed        Action = "auth.login_failed"
	ActionAuthPasswordChange     Action = "auth.password_change"
	ActionAuthUnauthorizedAccess Action = "auth.unauthorized_access"
	ActionAuthPermissionDenied   Action = "auth.permission_denied"

	ActionSystemConfigChange Action = "system.config_change"
	ActionSystemBackup       Action = "system.backup"
	ActionSystemRestore      Action = "system.restore"
	ActionSystemMaintenance  Action = "system.maintenance"
	ActionSystemHealthCheck  Action = "system.health_check"
	ActionSystemNetwork      Action = "system.network_change"

	ActionSecuritySuspicious Action = "security.suspicious_activity"
	ActionSecurityBruteForce Action = "security.brute_force"

	ActionDataExport     Action = "data.export"
	ActionDataImport     Action = "data.import"
	ActionDataBulkDelete Action = "data.bulk_delete"

	ActionReportGenerate Action = "report.generate"
	ActionReportView     Action = "report.view"
	ActionSettingsUpdate Action = "settings.update"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var actionSeverity = map[Action]Severity{
	ActionUserBulkDelete:         SeverityCritical,
	ActionDataBulkDelete:         SeverityCritical,
	ActionSystemConfigChange:     SeverityCritical,
	ActionSystemRestore:          SeverityCritical,
	ActionAuthUnauthorizedAccess: SeverityCritical,
	ActionSecuritySuspicious:     SeverityCritical,
	ActionSecurityBruteForce:     SeverityCritical,

	ActionUserDelete:           SeverityHigh,
	ActionUserRoleChange:       SeverityHigh,
	ActionUserBulkUpdate:       SeverityHigh,
	ActionUserDeactivate:       SeverityHigh,
	ActionUserPasswordReset:    SeverityHigh,
	ActionAuthLoginFailed:      SeverityHigh,
	ActionAuthPermissionDenied: SeverityHigh,

	ActionUserCreate:         SeverityMedium,
	ActionUserUpdate:         SeverityMedium,
	ActionUserActivate:       SeverityMedium,
	ActionUserExport:         SeverityMedium,
	ActionAuthPasswordChange: SeverityMedium,
	ActionSystemBackup:       SeverityMedium,
	ActionSystemMaintenance:  SeverityMedium,
	ActionSystemNetwork:      SeverityMedium,
	ActionDataExport:         SeverityMedium,
	ActionDataImport:         SeverityMedium,
	ActionReportGenerate:     SeverityMedium,
	ActionSettingsUpdate:     SeverityMedium,

	ActionUserView:          SeverityLow,
	ActionAuthLogin:         SeverityLow,
	ActionAuthLogout:        SeverityLow,
	ActionSystemHealthCheck: SeverityLow,
	ActionReportView:        SeverityLow,
}

// SeverityFor derives severity from the action alone. Unmapped actions are medium.
func SeverityFor(action Action) Severity {
	if s, ok := actionSeverity[action]; ok {
		return s
	}
	return SeverityMedium
}

// IsHighPriority reports whether entries for this action need low-latency delivery.
func IsHighPriority(action Action) bool {
	s := SeverityFor(action)
	return s == SeverityCritical || s == SeverityHigh
}
