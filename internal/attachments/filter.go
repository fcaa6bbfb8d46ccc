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

package attachments

import (
	"regexp"
	"strings"

	"github.com/Nxtvanhalen/byte-email/internal/models"
)

// signatureFilename matches the names email clients give auto-generated
// signature, logo and tracking images (Outlook's image001.png, logo.png,
// banner/pixel/spacer assets).
var signatureFilename = regexp.MustCompile(`(?i)^(image\d{3}|logo|signature|sig|banner|spacer|pixel|tracking)[^/]*\.(png|jpe?g|gif)$`)

// FilterSignatureImages drops inline images that look like auto-generated
// signature or logo artwork, keeping order otherwise. All three signals must
// agree — inline disposition, a content-id (referenced from the HTML body),
// and a generated-looking filename — so a genuine photo a user attached
// inline is never discarded on one weak signal.
func FilterSignatureImages(descriptors []models.AttachmentDescriptor) []models.AttachmentDescriptor {
	kept := make([]models.AttachmentDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if isSignatureImage(d) {
			continue
		}
		kept = append(kept, d)
	}
	return kept
}

func isSignatureImage(d models.AttachmentDescriptor) bool {
	if Classify(d.ContentType) != KindImage {
		return false
	}
	inline := strings.Contains(strings.ToLower(d.Disposition), "inline")
	referenced := d.ContentID != ""
	generated := signatureFilename.MatchString(d.Filename)
	return inline && referenced && generated
}
