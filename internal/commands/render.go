package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/bloxmod/modbridge/internal/profile"
	"github.com/bloxmod/modbridge/internal/registry"
)

// AttachmentThreshold is the rendered size above which the list reply
// switches from inline text to a file attachment.
const AttachmentThreshold = 1900

func renderSubject(title string, prof profile.Profile, userID string) string {
	return fmt.Sprintf("%s\nName: %s (@%s)\nID: %s", title, prof.DisplayName, prof.Username, userID)
}

func renderBanned(title string, prof profile.Profile, userID, reason string) string {
	return renderSubject(title, prof, userID) + "\nReason: " + reason
}

func renderPrompt(title string, prof profile.Profile, userID string) string {
	return renderSubject(title, prof, userID) + "\n\nType ban reason."
}

func renderList(entries []registry.ListEntry, now time.Time) string {
	var b strings.Builder
	for i, e := range entries {
		status := "PERM"
		if !e.Permanent {
			status = fmt.Sprintf("%dm left", registry.MinutesLeft(e.BanRecord, now))
		}
		username, display := e.Username, e.DisplayName
		if username == "" {
			username = profile.Unknown.Username
		}
		if display == "" {
			display = profile.Unknown.DisplayName
		}
		fmt.Fprintf(&b, "%d. %s (@%s) | ID: %s | %s\nReason: %s\n\n",
			i+1, display, username, e.UserID, status, e.Reason)
	}
	return b.String()
}
