// Copyright (c) 2026 Chris Bergstrom
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package webhook

import (
	"fmt"
	"net/http"

	svix "github.com/svix/svix-webhooks/go"
)

// SignatureVerifier authenticates a raw webhook delivery against its
// svix-id/svix-timestamp/svix-signature headers.
type SignatureVerifier interface {
	Verify(payload []byte, headers http.Header) error
}

// SvixVerifier verifies deliveries with the provider's shared signing secret.
type SvixVerifier struct {
	wh *svix.Webhook
}

// NewSvixVerifier builds a verifier from the shared secret.
func NewSvixVerifier(secret string) (*SvixVerifier, error) {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("init webhook verifier: %w", err)
	}
	return &SvixVerifier{wh: wh}, nil
}

// Verify checks the delivery signature. Any error means the request must be
// rejected before the payload is parsed.
func (v *SvixVerifier) Verify(payload []byte, headers http.Header) error {
	return v.wh.Verify(payload, headers)
}
