package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bloom-api/internal/config"
	"bloom-api/internal/domains/book/model"
)

var ErrInvalidVersion = errors.New("invalid version string")

// parseMajorMinor reads the first two numeric parts of "5.4", "5.4.12.0" or "6".
func parseMajorMinor(v string) (major, minor int, err error) {
	parts := strings.Split(strings.TrimSpace(v), ".")
	if len(parts) == 0 || parts[0] == "" {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}

	major, err = strconv.Atoi(parts[0])
	if err != nil || major < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}
	if len(parts) > 1 {
		minor, err = strconv.Atoi(parts[1])
		if err != nil || minor < 0 {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidVersion, v)
		}
	}
	return major, minor, nil
}

// IsClientVersionAllowed compares major.minor only. Same major: the minor
// must be at least the required minor. Different major: the major must be
// greater.
func IsClientVersionAllowed(client, required string) (bool, error) {
	reqMajor, reqMinor, err := parseMajorMinor(required)
	if err != nil {
		return false, fmt.Errorf("required version: %w", err)
	}
	major, minor, err := parseMajorMinor(client)
	if err != nil {
		return false, err
	}

	if major == reqMajor {
		return minor >= reqMinor, nil
	}
	return major > reqMajor, nil
}

// checkClientVersion returns a ClientOutOfDate error for old or unreadable
// client versions and a plain error when the minimum cannot be determined.
func (s *UploadService) checkClientVersion(ctx context.Context, env config.Environment, clientVersion string) error {
	required, err := s.repo.GetMinimumDesktopVersion(ctx, env)
	if err != nil {
		return fmt.Errorf("get minimum desktop version: %w", err)
	}

	if _, _, err := parseMajorMinor(required); err != nil {
		return fmt.Errorf("minimum desktop version: %w", err)
	}

	ok, err := IsClientVersionAllowed(clientVersion, required)
	if err != nil {
		return model.NewUploadError(model.CodeClientOutOfDate, err)
	}
	if !ok {
		return model.NewUploadError(model.CodeClientOutOfDate,
			fmt.Errorf("client %q below required %q", clientVersion, required))
	}
	return nil
}
