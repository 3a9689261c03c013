package auth

import (
	"context"
	"net/http"
	"strings"

	apierrors "github.com/tejusbharadwaj/rtclient/internal/errors"
)

// StaticKey authorizes every request with the same API key.
type StaticKey struct {
	key string
}

// NewStaticKey returns a provider for key.
func NewStaticKey(key string) (*StaticKey, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, apierrors.New(apierrors.ErrCodeInvalidArgument, "auth: empty api key")
	}
	return &StaticKey{key: key}, nil
}

func (s *StaticKey) EnsureAuthenticated(context.Context) error { return nil }

func (s *StaticKey) Authorize(_ context.Context, req *http.Request) error {
	setBearer(req, s.key)
	return nil
}

func (s *StaticKey) Invalidate() {}

func (s *StaticKey) Mode() Mode { return ModeStaticKey }

var _ Provider = (*StaticKey)(nil)
