// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package docstore

import (
	"context"
	"encoding/json"

	"github.com/samber/oops"
)

// Load reads the document id into a new T.
// Returns ErrNotFound (unwrapped) if the document does not exist.
func Load[T any](ctx context.Context, s *Session, id string) (*T, error) {
	raw, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	v := new(T)
	if err := json.Unmarshal(raw.Body, v); err != nil {
		return nil, oops.Code("DOCSTORE_DECODE_FAILED").With("id", id).Wrap(err)
	}
	return v, nil
}

// Query decodes every document in collection and returns those for which
// match returns true, in first-insertion order. A nil match keeps all.
func Query[T any](ctx context.Context, s *Session, collection string, match func(*T) bool, opts ...QueryOption) ([]*T, error) {
	raws, err := s.query(ctx, collection, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(raws))
	for _, raw := range raws {
		v := new(T)
		if err := json.Unmarshal(raw.Body, v); err != nil {
			return nil, oops.Code("DOCSTORE_DECODE_FAILED").
				With("id", raw.ID).
				With("collection", collection).
				Wrap(err)
		}
		if match == nil || match(v) {
			out = append(out, v)
		}
	}
	return out, nil
}
