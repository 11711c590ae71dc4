package hook

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/feedhook/feedhook/app/database"
	"github.com/feedhook/feedhook/app/fetch"
)

// logDataMaxBytes bounds how much response body one webhook log stores.
const logDataMaxBytes = 2048

// recordOutcome writes the webhook log row for one notification/webhook
// attempt. A transport error without an HTTP response is synthesized as 500.
func recordOutcome(repo database.WebhookLogRepository, f *database.Feed, h *database.Hook,
	typ string, resp *fetch.Response, sendErr error) {

	entry := &database.WebhookLog{
		UserID: f.UserID,
		HookID: h.ID,
		FeedID: f.ID,
		Type:   typ,
	}

	switch {
	case sendErr == nil && resp != nil:
		entry.Status = database.StatusSuccess
		entry.StatusCode = resp.StatusCode
		entry.StatusText = resp.StatusText
		entry.Data = truncateBytes(resp.Body, logDataMaxBytes)
		entry.Headers = encodeHeaders(resp.Headers)
	default:
		entry.Status = database.StatusFail
		var httpErr *fetch.HTTPError
		if errors.As(sendErr, &httpErr) {
			entry.StatusCode = httpErr.StatusCode
			entry.StatusText = httpErr.StatusText
			entry.Data = truncateBytes(httpErr.Body, logDataMaxBytes)
			entry.Headers = encodeHeaders(httpErr.Headers)
		} else {
			entry.StatusCode = http.StatusInternalServerError
			entry.StatusText = "Internal Server Error"
			if sendErr != nil {
				entry.Data = truncateBytes([]byte(sendErr.Error()), logDataMaxBytes)
			}
		}
	}

	if err := repo.InsertLog(entry); err != nil {
		slog.Error("Failed to record webhook log", "hook_id", h.ID, "feed_id", f.ID, "error", err)
	}
}

func truncateBytes(b []byte, max int) string {
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}

func encodeHeaders(headers http.Header) string {
	if len(headers) == 0 {
		return ""
	}
	encoded, err := json.Marshal(headers)
	if err != nil {
		return ""
	}
	return string(encoded)
}
