// Package audit provides security audit logging and the pipeline trace
// sink. Security events are logged in structured JSON format for easy
// parsing and integration with security information and event management
// systems.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/text2sql/pkg/logging"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection detects SQL
	// injection patterns in the question or in generated SQL literals.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventBlockedStatement is logged when the security layer rejects
	// generated SQL outright (non-SELECT, forbidden keyword, multiple
	// statements).
	EventBlockedStatement SecurityEventType = "blocked_statement"
)

// SecurityEvent represents an auditable security event with all relevant
// context for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RequestID uuid.UUID         `json:"request_id"`
	UserID    string            `json:"user_id,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// InjectionDetails contains specifics of a detected SQL injection attempt.
type InjectionDetails struct {
	Source      string `json:"source"` // "question" or "sql_literal"
	Name        string `json:"name"`
	Value       string `json:"value"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
}

// BlockedStatementDetails contains specifics of a rejected statement.
type BlockedStatementDetails struct {
	StatementType string `json:"statement_type"`
	Reason        string `json:"reason"`
	SQL           string `json:"sql"`
}

// SecurityAuditor logs security events for SIEM consumption.
// Events are logged in structured JSON format with appropriate severity levels.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger
// namespace. The "security_audit" namespace makes the events easy to filter
// in SIEM systems.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogInjectionAttempt records a detected SQL injection attempt with full
// context. This is logged at ERROR level with "critical" severity for
// immediate alerting. The offending value is logged verbatim; it is the
// evidence.
func (a *SecurityAuditor) LogInjectionAttempt(requestID uuid.UUID, userID string, details InjectionDetails) {
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventSQLInjectionAttempt,
		RequestID: requestID,
		UserID:    userID,
		Details:   details,
		Severity:  "critical",
	}

	// Ignoring error as marshaling known types should never fail
	eventJSON, _ := json.Marshal(event)

	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", string(eventJSON)),
		zap.String("request_id", requestID.String()),
		zap.String("user_id", userID),
		zap.String("source", details.Source),
		zap.String("name", details.Name),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("severity", "critical"),
	)
}

// LogBlockedStatement records generated SQL rejected by the security layer.
// Logged at ERROR level with "critical" severity: the generator should never
// produce anything but a SELECT, so a block indicates prompt injection or a
// badly misbehaving model. The SQL is sanitized before logging.
func (a *SecurityAuditor) LogBlockedStatement(requestID uuid.UUID, userID string, details BlockedStatementDetails) {
	details.SQL = logging.SanitizeQuery(details.SQL)

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventBlockedStatement,
		RequestID: requestID,
		UserID:    userID,
		Details:   details,
		Severity:  "critical",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Error("Blocked generated statement",
		zap.String("event_json", string(eventJSON)),
		zap.String("request_id", requestID.String()),
		zap.String("user_id", userID),
		zap.String("statement_type", details.StatementType),
		zap.String("reason", details.Reason),
		zap.String("severity", "critical"),
	)
}
