package invite

import (
	"errors"
	"net/url"
	"strings"

	"github.com/harrylevesque/invitedeliver/internal/utils"
)

var (
	ErrMissingDeviceURL = utils.New(utils.InputMissing, "missing device URL")
	ErrMissingToken     = utils.New(utils.InputMissing, "missing invite token")
	ErrInvalidURL       = utils.New(utils.InputInvalid, "invalid device URL")
)

// ComposeDeliveryURL sets the ek query parameter of deviceURLText to the
// normalized token. An existing ek parameter is replaced in place; the path,
// the fragment and every other parameter keep their order and encoding.
func ComposeDeliveryURL(deviceURLText, tokenText string) (string, error) {
	deviceURLText = strings.TrimSpace(deviceURLText)
	tokenText = strings.TrimSpace(tokenText)
	if deviceURLText == "" {
		return "", ErrMissingDeviceURL
	}
	if tokenText == "" {
		return "", ErrMissingToken
	}
	token := NormalizeToken(tokenText)
	if token == "" {
		return "", ErrMissingToken
	}

	u, err := ParseDeviceURL(deviceURLText)
	if err != nil {
		return "", err
	}
	u.RawQuery = setParam(u.RawQuery, ParamEK, token)
	u.ForceQuery = false
	return u.String(), nil
}

// ParseDeviceURL parses an absolute device URL (scheme and host required).
func ParseDeviceURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, utils.Wrap(ErrInvalidURL, err)
	}
	if u.Scheme == "" {
		return nil, utils.Wrap(ErrInvalidURL, errors.New("missing scheme"))
	}
	if u.Host == "" {
		return nil, utils.Wrap(ErrInvalidURL, errors.New("missing host"))
	}
	return u, nil
}

// setParam replaces the first occurrence of name in rawQuery, drops any
// further occurrences and appends the pair when it was absent.
func setParam(rawQuery, name, value string) string {
	pair := url.QueryEscape(name) + "=" + url.QueryEscape(value)
	if rawQuery == "" {
		return pair
	}

	parts := strings.Split(rawQuery, "&")
	out := make([]string, 0, len(parts)+1)
	replaced := false
	for _, part := range parts {
		if part == "" {
			continue
		}
		key := part
		if i := strings.IndexByte(part, '='); i >= 0 {
			key = part[:i]
		}
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if key != name {
			out = append(out, part)
			continue
		}
		if !replaced {
			out = append(out, pair)
			replaced = true
		}
	}
	if !replaced {
		out = append(out, pair)
	}
	return strings.Join(out, "&")
}
