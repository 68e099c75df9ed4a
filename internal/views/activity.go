package views

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/vulnsphere/console/internal/apiclient"
	"github.com/vulnsphere/console/internal/listing"
	"github.com/vulnsphere/console/internal/vulnsphere"
)

const (
	MsgAdminOnly      = "Access denied. Only administrators can view activity logs."
	MsgActivityFailed = "Failed to load activity logs"
)

// ErrAdminOnly is returned when the API refuses the activity log to a
// non-administrator.
var ErrAdminOnly = errors.New(MsgAdminOnly)

func ActivityQuery() listing.Query[vulnsphere.ActivityLog] {
	return listing.NewQuery[vulnsphere.ActivityLog](listing.ServerPaged, ActivityPageSize)
}

func (v *Views) Activity(ctx context.Context, q listing.Query[vulnsphere.ActivityLog]) (List[vulnsphere.ActivityLog], error) {
	l, err := load(ctx, v.api.ListActivityLogs, q)
	switch {
	case err == nil:
		return l, nil
	case apiclient.StatusOf(err) == http.StatusForbidden:
		return l, fmt.Errorf("%w: %w", ErrAdminOnly, err)
	}
	return l, fmt.Errorf("listing activity logs: %w", err)
}

// ActivityMessage is the text shown in place of the log when loading fails.
func ActivityMessage(err error) string {
	if errors.Is(err, ErrAdminOnly) {
		return MsgAdminOnly
	}
	return MsgActivityFailed
}

// EntityName describes what a log entry is about, from its metadata.
func EntityName(l vulnsphere.ActivityLog) string {
	meta := func(k string) string {
		if s, ok := l.Metadata[k].(string); ok {
			return s
		}
		return ""
	}
	switch l.EntityType {
	case "COMMENT":
		if t := meta("vulnerability_title"); t != "" {
			return "Comment on " + t
		}
		if t := meta("project_title"); t != "" {
			return "Comment on " + t
		}
		return "Comment"
	case "RETEST":
		if t := meta("vulnerability_title"); t != "" {
			return "Retest for " + t
		}
	}
	for _, k := range []string{"title", "name", "username"} {
		if v := meta(k); v != "" {
			return v
		}
	}
	return l.EntityID
}

var hiddenMetadata = map[string]bool{
	"title":               true,
	"name":                true,
	"username":            true,
	"vulnerability_title": true,
	"project_title":       true,
	"author_name":         true,
	"requested_by":        true,
	"performed_by":        true,
	"retest_id":           true,
}

// MetadataEntry is one displayed metadata pair.
type MetadataEntry struct {
	Label string
	Value string
}

// VisibleMetadata drops identifiers and the values already shown as the
// entity name, sorted by key.
func VisibleMetadata(l vulnsphere.ActivityLog) []MetadataEntry {
	keys := make([]string, 0, len(l.Metadata))
	for k := range l.Metadata {
		if hiddenMetadata[k] || strings.HasSuffix(k, "_id") || strings.HasSuffix(k, "_pk") || strings.HasSuffix(k, "uuid") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]MetadataEntry, len(keys))
	for i, k := range keys {
		out[i] = MetadataEntry{Label: strings.ReplaceAll(k, "_", " "), Value: fmt.Sprint(l.Metadata[k])}
	}
	return out
}

// Verb is the action as written in the log line, e.g. "status changed".
func Verb(a vulnsphere.Action) string {
	return strings.ReplaceAll(strings.ToLower(string(a)), "_", " ")
}
