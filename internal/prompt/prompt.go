// Package prompt collects the interactive credential flows used by
// `forge auth`. Each mirror backend has one flow matching its
// authentication scheme; all of them produce an auth.TokenBundle.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/dxforge/forge/pkg/auth"
)

// ErrCancelled is returned when the user aborts a prompt.
var ErrCancelled = errors.New("prompt cancelled")

// ForBackend runs the credential flow for a backend and returns the
// bundle to store.
func ForBackend(backend string) (auth.TokenBundle, error) {
	switch backend {
	case "github":
		return tokenFlow("GitHub personal access token", "ghp_")
	case "sketchfab":
		return tokenFlow("Sketchfab API token", "")
	case "gdrive", "youtube", "dropbox", "pinterest", "soundcloud":
		return oauthFlow(backend)
	case "mega":
		return megaFlow()
	case "r2":
		return s3Flow()
	default:
		return auth.TokenBundle{}, fmt.Errorf("no credential flow for backend %q", backend)
	}
}

// tokenFlow asks for a single pasted secret.
func tokenFlow(label, prefix string) (auth.TokenBundle, error) {
	token, err := secret(promptui.Prompt{
		Label: label,
		Mask:  '*',
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("token must not be empty")
			}
			if prefix != "" && !strings.HasPrefix(input, prefix) {
				return fmt.Errorf("expected a token starting with %q", prefix)
			}
			return nil
		},
	})
	if err != nil {
		return auth.TokenBundle{}, err
	}
	return auth.TokenBundle{AccessToken: token}, nil
}

// oauthFlow asks for a pasted OAuth2 access token and an optional
// refresh token. Running a local redirect server is deliberately out
// of scope; users paste tokens from the provider's console.
func oauthFlow(backend string) (auth.TokenBundle, error) {
	access, err := secret(promptui.Prompt{
		Label: fmt.Sprintf("%s OAuth2 access token", backend),
		Mask:  '*',
		Validate: notEmpty("access token"),
	})
	if err != nil {
		return auth.TokenBundle{}, err
	}

	refresh, err := secret(promptui.Prompt{
		Label: "Refresh token (optional, press enter to skip)",
		Mask:  '*',
	})
	if err != nil {
		return auth.TokenBundle{}, err
	}

	bundle := auth.TokenBundle{AccessToken: access}
	if refresh != "" {
		bundle.RefreshToken = &refresh
	}
	return bundle, nil
}

// megaFlow asks for the MEGA account email and password; the session
// id is established lazily at upload time.
func megaFlow() (auth.TokenBundle, error) {
	email, err := secret(promptui.Prompt{
		Label:    "MEGA account email",
		Validate: notEmpty("email"),
	})
	if err != nil {
		return auth.TokenBundle{}, err
	}
	password, err := secret(promptui.Prompt{
		Label:    "MEGA account password",
		Mask:     '*',
		Validate: notEmpty("password"),
	})
	if err != nil {
		return auth.TokenBundle{}, err
	}
	return megaBundle(email, password), nil
}

// megaBundle packs email and password the way the MEGA adapter reads
// them: email as the access token, password as the refresh token, no
// extra blob.
func megaBundle(email, password string) auth.TokenBundle {
	return auth.TokenBundle{AccessToken: email, RefreshToken: &password}
}

// s3Flow asks for the four connection fields of an S3-compatible
// backend.
func s3Flow() (auth.TokenBundle, error) {
	var accessKey, secretKey, bucket, endpoint string
	fields := []struct {
		label string
		mask  rune
		dest  *string
	}{
		{"Access key id", 0, &accessKey},
		{"Secret access key", '*', &secretKey},
		{"Bucket", 0, &bucket},
		{"Endpoint URL", 0, &endpoint},
	}

	for _, f := range fields {
		value, err := secret(promptui.Prompt{
			Label:    f.label,
			Mask:     f.mask,
			Validate: notEmpty(strings.ToLower(f.label)),
		})
		if err != nil {
			return auth.TokenBundle{}, err
		}
		*f.dest = value
	}

	return s3Bundle(accessKey, secretKey, bucket, endpoint)
}

// s3Bundle packs all four connection fields into the extra blob; the
// access key doubles as the bundle's access token.
func s3Bundle(accessKey, secretKey, bucket, endpoint string) (auth.TokenBundle, error) {
	extra, err := json.Marshal(map[string]string{
		"access_key_id":     accessKey,
		"secret_access_key": secretKey,
		"bucket":            bucket,
		"endpoint":          endpoint,
	})
	if err != nil {
		return auth.TokenBundle{}, err
	}
	return auth.TokenBundle{AccessToken: accessKey, Extra: extra}, nil
}

// Confirm asks a yes/no question, defaulting to yes.
func Confirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Default:   "y",
	}
	_, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return true, nil
}

func secret(p promptui.Prompt) (string, error) {
	value, err := p.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return strings.TrimSpace(value), nil
}

func notEmpty(name string) func(string) error {
	return func(input string) error {
		if strings.TrimSpace(input) == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
		return nil
	}
}
