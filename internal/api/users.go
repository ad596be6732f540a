package api

import (
	"context"
	"net/http"
)

// User looks up another account. Concurrent lookups of the same id share
// one request.
func (c *Client) User(ctx context.Context, id, token string) (*User, error) {
	v, err, _ := c.users.Do(id, func() (any, error) {
		var u User
		if err := c.do(ctx, http.MethodGet, "/users/"+escape(id), token, nil, &u); err != nil {
			return nil, err
		}
		return &u, nil
	})
	if err != nil {
		return nil, err
	}
	u := *v.(*User)
	return &u, nil
}

// Profile returns the signed-in account.
func (c *Client) Profile(ctx context.Context, token string) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/users/profile", token, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateProfile changes the signed-in account's name and email.
func (c *Client) UpdateProfile(ctx context.Context, token, name, email string) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodPut, "/users/profile", token, profileUpdate{Name: name, Email: email}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
