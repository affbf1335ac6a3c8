package stripebridge

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel defines logging severity levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// StructuredLogger provides structured JSON logging with PII masking.
// Buyer emails and key material must never reach the log stream in clear.
type StructuredLogger struct {
	mu      sync.Mutex
	level   LogLevel
	output  io.Writer
	masking bool
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp     string                 `json:"timestamp"`
	Level         string                 `json:"level"`
	Message       string                 `json:"message"`
	OrderID       int64                  `json:"order_id,omitempty"`
	SessionID     string                 `json:"session_id,omitempty"`
	PaymentIntent string                 `json:"payment_intent,omitempty"`
	Operation     string                 `json:"operation,omitempty"`
	ErrorCode     string                 `json:"error_code,omitempty"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(level LogLevel, enableMasking bool) *StructuredLogger {
	return &StructuredLogger{
		level:   level,
		output:  os.Stdout,
		masking: enableMasking,
	}
}

// Log writes a structured log entry
func (sl *StructuredLogger) Log(level LogLevel, message string, fields map[string]interface{}) {
	if sl == nil || !sl.shouldLog(level) {
		return
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.masking && fields != nil {
		fields = maskPII(fields)
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     string(level),
		Message:   message,
		Fields:    fields,
	}

	if orderID, ok := fields["order_id"].(int64); ok {
		entry.OrderID = orderID
		delete(fields, "order_id")
	}

	if sessionID, ok := fields["session_id"].(string); ok {
		entry.SessionID = sessionID
		delete(fields, "session_id")
	}

	if intent, ok := fields["payment_intent"].(string); ok {
		entry.PaymentIntent = intent
		delete(fields, "payment_intent")
	}

	if operation, ok := fields["operation"].(string); ok {
		entry.Operation = operation
		delete(fields, "operation")
	}

	if errorCode, ok := fields["error_code"].(string); ok {
		entry.ErrorCode = errorCode
		delete(fields, "error_code")
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		log.Printf("Failed to marshal log entry: %v", err)
		return
	}

	fmt.Fprintln(sl.output, string(jsonBytes))
}

// Info logs an info level message
func (sl *StructuredLogger) Info(message string, fields map[string]interface{}) {
	sl.Log(LogLevelInfo, message, fields)
}

// Warn logs a warning level message
func (sl *StructuredLogger) Warn(message string, fields map[string]interface{}) {
	sl.Log(LogLevelWarn, message, fields)
}

// Error logs an error level message
func (sl *StructuredLogger) Error(message string, fields map[string]interface{}) {
	sl.Log(LogLevelError, message, fields)
}

// Debug logs a debug level message
func (sl *StructuredLogger) Debug(message string, fields map[string]interface{}) {
	sl.Log(LogLevelDebug, message, fields)
}

// shouldLog determines if a message should be logged based on level
func (sl *StructuredLogger) shouldLog(level LogLevel) bool {
	levels := map[LogLevel]int{
		LogLevelDebug: 0,
		LogLevelInfo:  1,
		LogLevelWarn:  2,
		LogLevelError: 3,
	}

	return levels[level] >= levels[sl.level]
}

// maskPII masks sensitive information in log fields
func maskPII(fields map[string]interface{}) map[string]interface{} {
	masked := make(map[string]interface{})

	for k, v := range fields {
		key := strings.ToLower(k)

		if strings.Contains(key, "secret") ||
			strings.Contains(key, "key") && !strings.Contains(key, "idempotency") ||
			strings.Contains(key, "password") {

			switch val := v.(type) {
			case string:
				masked[k] = maskString(val)
			default:
				masked[k] = "[REDACTED]"
			}
		} else if strings.Contains(key, "email") {
			if email, ok := v.(string); ok {
				masked[k] = maskEmail(email)
			} else {
				masked[k] = v
			}
		} else {
			masked[k] = v
		}
	}

	return masked
}

// maskString masks a string value, showing only first and last 4 characters
func maskString(s string) string {
	if len(s) <= 8 {
		return "[REDACTED]"
	}

	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// maskEmail partially masks an email address
func maskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "[REDACTED]"
	}

	username := parts[0]
	domain := parts[1]

	maskedUsername := ""
	if len(username) <= 2 {
		maskedUsername = strings.Repeat("*", len(username))
	} else {
		maskedUsername = string(username[0]) + strings.Repeat("*", len(username)-2) + string(username[len(username)-1])
	}

	return maskedUsername + "@" + domain
}

// LogProviderFailure logs a failed provider call with the local order id
// so operators can line the entry up with the order record.
func LogProviderFailure(logger *StructuredLogger, orderID int64, sessionID, operation string, code ErrorCode, err error) {
	logger.Error("Provider request failed", map[string]interface{}{
		"order_id":   orderID,
		"session_id": sessionID,
		"operation":  operation,
		"error_code": string(code),
		"cause":      err.Error(),
	})
}

// LogCaptureDecision logs the outcome of a capture attempt
func LogCaptureDecision(logger *StructuredLogger, orderID int64, sessionID string, accepted bool, reason string) {
	level := LogLevelInfo
	message := "Capture accepted"
	if !accepted {
		level = LogLevelWarn
		message = "Capture rejected"
	}

	logger.Log(level, message, map[string]interface{}{
		"order_id":   orderID,
		"session_id": sessionID,
		"operation":  "capture",
		"reason":     reason,
	})
}
