// Package profile checks user profiles for required fields and nudges users
// whose profiles are incomplete, mirroring the workspace usage guide.
package profile

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/slack-go/slack"
)

// FieldResult is one rule's verdict for one user.
type FieldResult struct {
	Field string
	OK    bool
}

// FieldRule checks a single required profile field. The user's Profile has
// been enriched with the detailed profile (including custom field labels)
// before rules run.
type FieldRule interface {
	Check(ctx context.Context, user slack.User) (FieldResult, error)
}

// RealNameRule requires a real name distinct from the account name.
type RealNameRule struct{}

func (RealNameRule) Check(_ context.Context, user slack.User) (FieldResult, error) {
	ok := strings.TrimSpace(user.Profile.RealName) != "" &&
		!strings.EqualFold(user.Profile.RealName, user.Name)
	return FieldResult{Field: "real name", OK: ok}, nil
}

// DisplayNameRule requires a display name.
type DisplayNameRule struct{}

func (DisplayNameRule) Check(_ context.Context, user slack.User) (FieldResult, error) {
	return FieldResult{Field: "display name", OK: strings.TrimSpace(user.Profile.DisplayName) != ""}, nil
}

// TitleRule requires the "what I do" field.
type TitleRule struct{}

func (TitleRule) Check(_ context.Context, user slack.User) (FieldResult, error) {
	return FieldResult{Field: "title", OK: strings.TrimSpace(user.Profile.Title) != ""}, nil
}

// HomeBaseRule requires the workspace's "Home Base" custom field.
type HomeBaseRule struct {
	// Label of the custom field, "Home Base" unless overridden.
	Label string
}

func (r HomeBaseRule) Check(_ context.Context, user slack.User) (FieldResult, error) {
	label := r.Label
	if label == "" {
		label = "Home Base"
	}
	ok := false
	for _, field := range user.Profile.Fields.ToMap() {
		if strings.EqualFold(field.Label, label) && strings.TrimSpace(field.Value) != "" {
			ok = true
			break
		}
	}
	return FieldResult{Field: "home base", OK: ok}, nil
}

// PictureRule requires a profile picture that is not one of the known
// default avatars. Default avatars are identified by the MD5 of the 24px
// image, see DefaultAvatarHashes.
type PictureRule struct {
	KnownDefaultHashes map[string]struct{}
	HTTPClient         *http.Client
}

func (r PictureRule) Check(ctx context.Context, user slack.User) (FieldResult, error) {
	result := FieldResult{Field: "profile picture"}
	if user.Profile.Image24 == "" {
		return result, nil
	}

	sum, err := fetchImageHash(ctx, r.client(), user.Profile.Image24)
	if err != nil {
		return result, fmt.Errorf("fetch profile picture for %s: %w", user.Name, err)
	}
	_, isDefault := r.KnownDefaultHashes[sum]
	result.OK = !isDefault
	return result, nil
}

func (r PictureRule) client() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return http.DefaultClient
}

func fetchImageHash(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// DefaultRules returns the rule set the profile checker runs, matching the
// workspace usage guide.
func DefaultRules(knownDefaultHashes map[string]struct{}) []FieldRule {
	return []FieldRule{
		RealNameRule{},
		DisplayNameRule{},
		TitleRule{},
		HomeBaseRule{},
		PictureRule{KnownDefaultHashes: knownDefaultHashes},
	}
}
