// Copyright Contributors to the ingestctl project

// Package webhookverify implements the pure verification step the
// manager's webhook dispatch runs before any task lookup: given the
// headers and raw body of an inbound request plus the secret on file
// for the claimed source, classify the delivery and decide whether its
// signature or token checks out.
//
// Verify never performs I/O and never returns an error merely because
// authentication failed — that is encoded in VerifiedEvent.IsValid, so
// callers can run Verify once with no secret to extract the resource
// id (the manager's "preliminary parse", which has nothing to check
// against yet) and again with the real secret to decide validity.
// Verify returns an error only when the request is too malformed to
// classify at all (unparseable JSON, an unrecognized algorithm prefix,
// a missing resource id).
package webhookverify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ingestctl/ingestor/api/ingestion"
)

// Service distinguishes which header/signature convention to apply.
type Service string

const (
	// ServiceGit covers providers that sign with HMAC-SHA256 over the
	// raw JSON body and pass an X-GitHub-Event-style type header.
	ServiceGit Service = "git"
	// ServiceDrive covers Google Drive/Workspace push notifications,
	// which carry no body and authenticate via a channel identifier
	// header instead of a body signature.
	ServiceDrive Service = "drive"
)

// VerifiedEvent is the result of a Verify call.
type VerifiedEvent struct {
	IsValid            bool
	Payload            map[string]any
	ExternalResourceID string
	ChangeType         ingestion.ChangeType
}

var (
	ErrInvalidJSON         = errors.New("webhookverify: invalid JSON body")
	ErrUnsupportedAlgorithm = errors.New("webhookverify: unsupported signature algorithm")
	ErrMissingResourceID   = errors.New("webhookverify: could not extract resource id")
	ErrUnknownService      = errors.New("webhookverify: unknown service")
)

// Verify authenticates an inbound webhook delivery and classifies its
// change type. headers is case-insensitively keyed (pass an
// http.Header or any map built with http.CanonicalHeaderKey). Pass an
// empty expectedSecret to skip signature/token validation entirely
// (IsValid is then meaningless; only Payload/ExternalResourceID/
// ChangeType are populated) — this is the manager's preliminary,
// secret-less parse used to resolve which registry entry applies.
func Verify(service Service, headers http.Header, body []byte, expectedSecret string) (VerifiedEvent, error) {
	switch service {
	case ServiceGit:
		return verifyGit(headers, body, expectedSecret)
	case ServiceDrive:
		return verifyDrive(headers, expectedSecret)
	default:
		return VerifiedEvent{}, fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
}

func verifyGit(headers http.Header, body []byte, expectedSecret string) (VerifiedEvent, error) {
	var payload map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return VerifiedEvent{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
	}

	isValid := true
	if expectedSecret != "" {
		const prefix = "sha256="
		sig := headers.Get("X-Hub-Signature-256")
		switch {
		case sig == "" && headers.Get("X-Hub-Signature") != "":
			// Only sha256= over X-Hub-Signature-256 is accepted; an
			// X-Hub-Signature (sha1=) delivery with no sha256 header is
			// an unsupported algorithm, not a degraded-but-valid one.
			return VerifiedEvent{}, ErrUnsupportedAlgorithm
		case sig == "":
			// Missing signature entirely: keep extracting fields, but
			// the delivery is not authenticated.
			isValid = false
		case !strings.HasPrefix(sig, prefix):
			return VerifiedEvent{}, ErrUnsupportedAlgorithm
		default:
			mac := hmac.New(sha256.New, []byte(expectedSecret))
			mac.Write(body)
			expected := hex.EncodeToString(mac.Sum(nil))
			if !hmac.Equal([]byte(strings.TrimPrefix(sig, prefix)), []byte(expected)) {
				isValid = false
			}
		}
	}

	eventType := headers.Get("X-GitHub-Event")
	changeType := classifyGitEvent(eventType, payload)

	resourceID, err := gitResourceID(payload)
	if err != nil {
		return VerifiedEvent{}, err
	}

	return VerifiedEvent{
		IsValid:            isValid,
		Payload:            payload,
		ExternalResourceID: resourceID,
		ChangeType:         changeType,
	}, nil
}

func gitResourceID(payload map[string]any) (string, error) {
	repo, _ := payload["repository"].(map[string]any)
	fullName, _ := repo["full_name"].(string)
	if fullName == "" {
		return "", ErrMissingResourceID
	}
	return "https://github.com/" + fullName, nil
}

func classifyGitEvent(eventType string, payload map[string]any) ingestion.ChangeType {
	switch eventType {
	case "push":
		if deleted, _ := payload["deleted"].(bool); deleted {
			return ingestion.ChangeTypeDelete
		}
		return ingestion.ChangeTypeUpsert
	case "pull_request":
		return ingestion.ChangeTypeUpsert
	default:
		return ingestion.ChangeTypeUnknown
	}
}

func verifyDrive(headers http.Header, expectedSecret string) (VerifiedEvent, error) {
	isValid := true
	if expectedSecret != "" && headers.Get("X-Goog-Channel-Id") != expectedSecret {
		isValid = false
	}

	resourceID, err := driveResourceID(headers.Get("X-Goog-Resource-Uri"))
	if err != nil {
		return VerifiedEvent{}, err
	}

	payload := map[string]any{}
	for key, values := range headers {
		if strings.HasPrefix(key, "X-Goog-") && len(values) > 0 {
			payload[key] = values[0]
		}
	}

	state := headers.Get("X-Goog-Resource-State")
	return VerifiedEvent{
		IsValid:            isValid,
		Payload:            payload,
		ExternalResourceID: resourceID,
		ChangeType:         classifyDriveState(state),
	}, nil
}

func driveResourceID(resourceURI string) (string, error) {
	trimmed := strings.TrimRight(resourceURI, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return "", ErrMissingResourceID
	}
	segment := trimmed[idx+1:]
	if segment == "" {
		return "", ErrMissingResourceID
	}
	return segment, nil
}

func classifyDriveState(state string) ingestion.ChangeType {
	switch state {
	case "exists", "add", "update":
		return ingestion.ChangeTypeUpsert
	case "not_exists", "trash":
		return ingestion.ChangeTypeDelete
	default:
		return ingestion.ChangeTypeUnknown
	}
}
