package webhookverify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"testing"

	"github.com/ingestctl/ingestor/api/ingestion"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyGitValidSignature(t *testing.T) {
	body := []byte(`{"repository":{"full_name":"ex/r"},"deleted":false}`)
	secret := "abc"

	headers := http.Header{}
	headers.Set("X-Hub-Signature-256", sign(secret, body))
	headers.Set("X-GitHub-Event", "push")

	ev, err := Verify(ServiceGit, headers, body, secret)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ev.IsValid {
		t.Fatalf("expected valid signature")
	}
	if ev.ChangeType != ingestion.ChangeTypeUpsert {
		t.Fatalf("got change type %q, want Upsert", ev.ChangeType)
	}
	if ev.ExternalResourceID != "https://github.com/ex/r" {
		t.Fatalf("got resource id %q", ev.ExternalResourceID)
	}
}

func TestVerifyGitWrongSecretIsInvalidNotError(t *testing.T) {
	body := []byte(`{"repository":{"full_name":"ex/r"}}`)
	headers := http.Header{}
	headers.Set("X-Hub-Signature-256", sign("right-secret", body))
	headers.Set("X-GitHub-Event", "push")

	ev, err := Verify(ServiceGit, headers, body, "wrong-secret")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ev.IsValid {
		t.Fatalf("expected IsValid=false on signature mismatch")
	}
	// Fields are still extracted even though the delivery isn't authentic.
	if ev.ExternalResourceID != "https://github.com/ex/r" {
		t.Fatalf("got resource id %q", ev.ExternalResourceID)
	}
}

func TestVerifyGitMissingSignatureContinuesExtraction(t *testing.T) {
	body := []byte(`{"repository":{"full_name":"ex/r"}}`)
	headers := http.Header{}
	headers.Set("X-GitHub-Event", "push")

	ev, err := Verify(ServiceGit, headers, body, "abc")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ev.IsValid {
		t.Fatalf("expected IsValid=false when signature header absent")
	}
	if ev.ExternalResourceID != "https://github.com/ex/r" {
		t.Fatalf("got resource id %q, want fields still extracted", ev.ExternalResourceID)
	}
}

func TestVerifyGitNoExpectedSecretSkipsValidation(t *testing.T) {
	body := []byte(`{"repository":{"full_name":"ex/r"}}`)
	headers := http.Header{}
	headers.Set("X-GitHub-Event", "push")

	ev, err := Verify(ServiceGit, headers, body, "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ev.ExternalResourceID != "https://github.com/ex/r" {
		t.Fatalf("got resource id %q", ev.ExternalResourceID)
	}
}

func TestVerifyGitSha1SignatureIsUnsupportedAlgorithm(t *testing.T) {
	body := []byte(`{"repository":{"full_name":"ex/r"}}`)
	headers := http.Header{}
	headers.Set("X-Hub-Signature", "sha1=deadbeef")
	headers.Set("X-GitHub-Event", "push")

	_, err := Verify(ServiceGit, headers, body, "abc")
	if !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("got %v, want ErrUnsupportedAlgorithm", err)
	}
}

func TestVerifyGitDeleteEvent(t *testing.T) {
	body := []byte(`{"repository":{"full_name":"ex/r"},"deleted":true}`)
	secret := "abc"
	headers := http.Header{}
	headers.Set("X-Hub-Signature-256", sign(secret, body))
	headers.Set("X-GitHub-Event", "push")

	ev, err := Verify(ServiceGit, headers, body, secret)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ev.ChangeType != ingestion.ChangeTypeDelete {
		t.Fatalf("got change type %q, want Delete", ev.ChangeType)
	}
}

func TestVerifyGitMissingFullNameErrors(t *testing.T) {
	body := []byte(`{"repository":{}}`)
	_, err := Verify(ServiceGit, http.Header{}, body, "")
	if !errors.Is(err, ErrMissingResourceID) {
		t.Fatalf("got %v, want ErrMissingResourceID", err)
	}
}

func TestVerifyGitInvalidJSON(t *testing.T) {
	_, err := Verify(ServiceGit, http.Header{}, []byte("not json"), "")
	if !errors.Is(err, ErrInvalidJSON) {
		t.Fatalf("got %v, want ErrInvalidJSON", err)
	}
}

func TestVerifyDriveValidChannel(t *testing.T) {
	headers := http.Header{}
	headers.Set("X-Goog-Channel-Id", "chan-secret")
	headers.Set("X-Goog-Resource-Uri", "https://www.googleapis.com/drive/v3/files/folder123")
	headers.Set("X-Goog-Resource-State", "update")

	ev, err := Verify(ServiceDrive, headers, nil, "chan-secret")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ev.IsValid {
		t.Fatalf("expected valid channel id")
	}
	if ev.ExternalResourceID != "folder123" {
		t.Fatalf("got resource id %q", ev.ExternalResourceID)
	}
	if ev.ChangeType != ingestion.ChangeTypeUpsert {
		t.Fatalf("got change type %q, want Upsert", ev.ChangeType)
	}
}

func TestVerifyDriveWrongChannelIsInvalid(t *testing.T) {
	headers := http.Header{}
	headers.Set("X-Goog-Channel-Id", "wrong")
	headers.Set("X-Goog-Resource-Uri", "https://example.com/files/folder123")

	ev, err := Verify(ServiceDrive, headers, nil, "chan-secret")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ev.IsValid {
		t.Fatalf("expected IsValid=false on channel id mismatch")
	}
}

func TestVerifyDriveMissingResourceURI(t *testing.T) {
	headers := http.Header{}
	_, err := Verify(ServiceDrive, headers, nil, "")
	if !errors.Is(err, ErrMissingResourceID) {
		t.Fatalf("got %v, want ErrMissingResourceID", err)
	}
}

func TestVerifyUnknownService(t *testing.T) {
	_, err := Verify(Service("carrier-pigeon"), http.Header{}, nil, "secret")
	if !errors.Is(err, ErrUnknownService) {
		t.Fatalf("got %v, want ErrUnknownService", err)
	}
}
