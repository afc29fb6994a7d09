package api

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

type LoginConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Login exchanges a username and password for a session token with the
// provider discovered from cfg.Issuer. The ID token is preferred since the
// backend verifies it; the access token is used when none is issued.
func Login(ctx context.Context, cfg LoginConfig, username, password string) (string, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return "", errors.Wrap(err, "discover identity provider")
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID}
	}
	authConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		Scopes:       scopes,
	}
	token, err := authConfig.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		return "", errors.Wrap(err, "password grant")
	}
	if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" {
		return rawIDToken, nil
	}
	return token.AccessToken, nil
}
