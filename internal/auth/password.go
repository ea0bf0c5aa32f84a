// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/samber/oops"
)

const (
	passwordLetters = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	passwordSymbols = "!@#$%^&*()-_=+[]{};:.?"

	// generatedPasswordLength is the minimum length of generated passwords.
	generatedPasswordLength = 14

	// generatedPasswordSymbols is the minimum symbol count of generated passwords.
	generatedPasswordSymbols = 2

	maxGenerateAttempts = 16
)

// GeneratePassword returns a random password of length characters, at
// least symbols of which are non-alphanumeric.
func GeneratePassword(length, symbols int) (string, error) {
	if length < 1 || symbols < 0 || symbols > length {
		return "", oops.Code("AUTH_INVALID_PASSWORD_SHAPE").
			With("length", length).
			With("symbols", symbols).
			Errorf("cannot generate %d-character password with %d symbols", length, symbols)
	}

	out := make([]byte, length)
	for i := range out {
		set := passwordLetters
		if i < symbols {
			set = passwordSymbols
		}
		c, err := randomByte(set)
		if err != nil {
			return "", err
		}
		out[i] = c
	}

	// Fisher-Yates so symbols are not always leading.
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", oops.Code("AUTH_RANDOM_FAILED").Wrap(err)
		}
		k := int(j.Int64())
		out[i], out[k] = out[k], out[i]
	}
	return string(out), nil
}

// GeneratePolicyPassword returns a random password that passes the gate's
// rules for namespace.
func (g *Gate) GeneratePolicyPassword(ctx context.Context, namespace, username string) (string, error) {
	policy := g.Policy(namespace)
	length := max(generatedPasswordLength, policy.MinPasswordLength)
	symbols := max(generatedPasswordSymbols, policy.MinNonAlphanumeric)
	length = min(max(length, symbols), MaxPasswordLength)

	var lastErr error
	for range maxGenerateAttempts {
		pw, err := GeneratePassword(length, symbols)
		if err != nil {
			return "", err
		}
		if lastErr = g.checkPasswordRules(ctx, policy, username, pw, false); lastErr == nil {
			return pw, nil
		}
	}
	return "", oops.Code("AUTH_PASSWORD_GENERATION_FAILED").
		With("namespace", namespace).
		With("attempts", maxGenerateAttempts).
		Wrap(lastErr)
}

func randomByte(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, oops.Code("AUTH_RANDOM_FAILED").Wrap(err)
	}
	return set[n.Int64()], nil
}
