package gotrue

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jrsteele09/campus-auth/profiles"
	"github.com/jrsteele09/campus-auth/users"
	"github.com/pkg/errors"
)

const restPath = "/rest/v1"

var _ profiles.Repo = (*Client)(nil)

// GetByUserID reads the user's profile row through the REST API, authorized
// as the signed in user so row level security applies.
func (c *Client) GetByUserID(ctx context.Context, userID string) (*users.Profile, error) {
	query := url.Values{
		"id":     {"eq." + userID},
		"select": {"id,role"},
	}
	var rows []users.Profile
	if err := c.do(ctx, http.MethodGet, restPath+"/profiles", query, nil, c.currentToken(ctx), &rows); err != nil {
		return nil, errors.Wrapf(err, "[gotrue.GetByUserID] %s", userID)
	}
	if len(rows) == 0 {
		return nil, profiles.ErrProfileNotFound
	}
	return &rows[0], nil
}
