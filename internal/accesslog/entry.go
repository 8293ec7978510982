// Package accesslog keeps a trail of successful write calls in MongoDB.
package accesslog

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nis-portal/portal-api/internal/observability"
)

// Entry is one recorded HTTP write call.
type Entry struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Method     string             `bson:"method" json:"method"`
	Path       string             `bson:"path" json:"path"`
	Route      string             `bson:"route,omitempty" json:"route,omitempty"`
	Query      string             `bson:"query,omitempty" json:"query,omitempty"`
	Status     int                `bson:"status" json:"status"`
	UserID     int64              `bson:"user_id,omitempty" json:"user_id,omitempty"`
	IPAddress  string             `bson:"ip_address,omitempty" json:"ip_address,omitempty"`
	UserAgent  string             `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
	RequestID  string             `bson:"request_id,omitempty" json:"request_id,omitempty"`
	Body       interface{}        `bson:"body,omitempty" json:"body,omitempty"`
	DurationMS int64              `bson:"duration_ms" json:"duration_ms"`
	Timestamp  time.Time          `bson:"timestamp" json:"timestamp"`
}

// SanitizeBody decodes a JSON body and masks credentials and personal
// identifiers at any depth. Anything that does not decode is replaced by
// OmittedBody so raw text never reaches the trail.
func SanitizeBody(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return OmittedBody(len(raw))
	}
	return sanitizeValue(decoded)
}

// OmittedBody is the placeholder stored for bodies that cannot be masked.
func OmittedBody(size int) string {
	return fmt.Sprintf("[unparsed body omitted: %d bytes]", size)
}

func sanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		masked := observability.MaskSensitiveData(val)
		for k, nested := range masked {
			masked[k] = sanitizeValue(nested)
		}
		return masked
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}
