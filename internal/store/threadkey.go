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

package store

import (
	"crypto/sha256"
	"encoding/base64"
	"regexp"
	"strings"
)

// Prefixes and brand tags stripped during subject normalization. Reply and
// forward prefixes can stack ("Re: Fwd: Re: ..."), so stripping loops.
var (
	replyPrefix = regexp.MustCompile(`(?i)^(re|fwd|fw):\s*`)
	brandTag    = regexp.MustCompile(`(?i)^byte email\s*\|\s*`)
	thinkingTag = regexp.MustCompile(`(?i)^\[thinking\]\s*`)
)

// NormalizeSubject strips reply/forward prefixes and system-added tags so
// that every turn of a thread lands on the same key.
func NormalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		next := replyPrefix.ReplaceAllString(s, "")
		next = brandTag.ReplaceAllString(next, "")
		next = thinkingTag.ReplaceAllString(next, "")
		next = strings.TrimSpace(next)
		if next == s {
			return s
		}
		s = next
	}
}

// ThreadKey derives the deterministic conversation key for an email:
// normalized subject + sender, content-addressed into a fixed-length opaque
// token. Subject casing and reply prefixes do not fork the thread; a
// genuinely different subject starts a fresh one.
func ThreadKey(subject, from string) string {
	normalized := strings.ToLower(NormalizeSubject(subject)) + strings.ToLower(strings.TrimSpace(from))
	sum := sha256.Sum256([]byte(normalized))
	return "email:" + base64.RawURLEncoding.EncodeToString(sum[:])[:24]
}
