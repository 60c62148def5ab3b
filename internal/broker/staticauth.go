package broker

import (
	"fmt"
	"log"
	"strings"
)

// StaticAuthenticator resolves a fixed set of tokens configured at startup.
// Credential issuance and storage are out of scope (spec Non-goals); this
// is the simplest Authenticator a deployment can plug in, and the one
// cmd/cwt-relay wires by default.
type StaticAuthenticator struct {
	desktopTokens map[string]desktopIdentity
	mobileTokens  map[string]string
}

type desktopIdentity struct {
	userID     string
	deviceID   string
	deviceName string
}

// NewStaticAuthenticator builds an authenticator from "token=userID" pairs
// (mobile) and "token=userID:deviceID:deviceName" pairs (desktop).
func NewStaticAuthenticator(desktopEntries, mobileEntries []string) *StaticAuthenticator {
	a := &StaticAuthenticator{
		desktopTokens: make(map[string]desktopIdentity),
		mobileTokens:  make(map[string]string),
	}
	for _, entry := range desktopEntries {
		token, rest, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		parts := strings.SplitN(rest, ":", 3)
		id := desktopIdentity{userID: parts[0]}
		if len(parts) > 1 {
			id.deviceID = parts[1]
		}
		if len(parts) > 2 {
			id.deviceName = parts[2]
		}
		a.desktopTokens[token] = id
	}
	for _, entry := range mobileEntries {
		token, userID, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		a.mobileTokens[token] = userID
	}
	return a
}

func (a *StaticAuthenticator) AuthenticateDesktop(token string) (userID, deviceID, deviceName string, err error) {
	id, ok := a.desktopTokens[token]
	if !ok {
		return "", "", "", fmt.Errorf("broker: unknown desktop token")
	}
	return id.userID, id.deviceID, id.deviceName, nil
}

func (a *StaticAuthenticator) AuthenticateMobile(token string) (userID string, err error) {
	userID, ok := a.mobileTokens[token]
	if !ok {
		return "", fmt.Errorf("broker: unknown mobile token")
	}
	return userID, nil
}

// LoggingPushSender is a no-op PushSender that logs what it would have
// sent. Real push transports (APNs, FCM) are out of scope; deployments
// that need one implement PushSender directly.
type LoggingPushSender struct{}

func (LoggingPushSender) Send(deviceToken, title, body string) error {
	log.Printf("[BROKER] push (no transport configured): %s: %s", title, body)
	return nil
}

func (LoggingPushSender) DeviceTokens(userID string) []string { return nil }

func (LoggingPushSender) RemoveDeviceToken(userID, token string) {}
