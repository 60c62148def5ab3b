package broker

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cwt-dev/cwtd/internal/cwterrors"
	"github.com/cwt-dev/cwtd/internal/types"
)

const (
	titleCwdMaxLen    = 40
	bodyLineMaxLen    = 80
	optionsOneLineLen = 45
)

// PushSender delivers a push notification to one device token. Transport
// errors classified as "invalid token" should be returned wrapped in a
// *cwterrors.PushError with Kind cwterrors.PushInvalidToken.
type PushSender interface {
	Send(deviceToken, title, body string) error
	// DeviceTokens returns every registered push token for a user.
	DeviceTokens(userID string) []string
	// RemoveDeviceToken drops a token rejected by the transport as invalid.
	RemoveDeviceToken(userID, token string)
}

// gatePush applies the push-notification gate to a claude_questions frame:
// for every question not covered by an auto-yes pane, dedup on question_id
// (1h TTL) then rate-limit on user_id (short TTL), issuing at most one push
// per device token when both checks pass.
func (h *Hub) gatePush(userID string, raw []byte) {
	if h.Push == nil {
		return
	}
	var msg types.ClaudeQuestionsMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	for _, q := range msg.Questions {
		if h.isAutoYesPane(userID, string(q.PaneHandle)) {
			continue
		}
		if h.questionAlreadyPushed(q.QuestionID) {
			continue
		}
		if !h.claimRateLimit(userID) {
			continue
		}
		// Dedup is only committed once rate-limiting has cleared the way for
		// an actual send attempt; a question merely skipped for being
		// rate-limited must stay eligible once the rate-limit window clears.
		if !h.claimQuestion(q.QuestionID) {
			continue
		}
		h.sendPush(userID, q)
	}
}

func (h *Hub) sendPush(userID string, q types.Question) {
	title, body := formatPush(q)
	for _, token := range h.Push.DeviceTokens(userID) {
		if err := h.Push.Send(token, title, body); err != nil {
			var pushErr *cwterrors.PushError
			if errors.As(err, &pushErr) && pushErr.Kind == cwterrors.PushInvalidToken {
				h.Push.RemoveDeviceToken(userID, token)
				continue
			}
			log.Printf("[BROKER] push send failed for user %s: %v", userID, err)
		}
	}
}

// formatPush builds a compact title (a condensed cwd) and body (last
// meaningful context line plus option labels) for a question push.
func formatPush(q types.Question) (title, body string) {
	title = truncate(q.Cwd, titleCwdMaxLen)
	if title == "" {
		title = "cwtd"
	}

	lastLine := lastMeaningfulLine(q.ContextLines)
	optionsLine := formatOptions(q.Options)

	body = truncate(lastLine, bodyLineMaxLen)
	if optionsLine == "" {
		return title, body
	}
	if len(optionsLine) <= optionsOneLineLen {
		return title, body + " " + optionsLine
	}
	return title, body + "\n" + strings.ReplaceAll(optionsLine, ", ", "\n")
}

func lastMeaningfulLine(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return strings.TrimSpace(lines[i])
		}
	}
	return ""
}

func formatOptions(opts []types.QuestionOption) string {
	labels := make([]string, len(opts))
	for i, o := range opts {
		labels[i] = fmt.Sprintf("%s. %s", o.Number, o.Label)
	}
	return strings.Join(labels, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// questionAlreadyPushed reports whether question_id was pushed within the
// last hour, without claiming anything (a read-only peek).
func (h *Hub) questionAlreadyPushed(questionID string) bool {
	h.pushMu.Lock()
	defer h.pushMu.Unlock()
	expiry, ok := h.pushed["pushed_q:"+questionID]
	return ok && time.Now().Before(expiry)
}

// claimQuestion reports whether question_id has NOT been pushed within the
// last hour, atomically claiming it if so ("set if not present" semantics).
func (h *Hub) claimQuestion(questionID string) bool {
	return h.claim(&h.pushed, "pushed_q:"+questionID, questionPushTTL)
}

// claimRateLimit reports whether userID is not currently rate-limited,
// atomically claiming the window if so.
func (h *Hub) claimRateLimit(userID string) bool {
	return h.claim(&h.rateLimit, "push_limit:"+userID, h.rateTTL)
}

func (h *Hub) claim(table *map[string]time.Time, key string, ttl time.Duration) bool {
	h.pushMu.Lock()
	defer h.pushMu.Unlock()
	now := time.Now()
	if expiry, ok := (*table)[key]; ok && now.Before(expiry) {
		return false
	}
	(*table)[key] = now.Add(ttl)
	return true
}
