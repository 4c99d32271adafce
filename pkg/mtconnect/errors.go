/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package mtconnect

import "errors"

var (
	// ErrNoData is returned by Parse when the document content is empty or whitespace.
	// It is not a failure: callers should treat it as "nothing to flatten this cycle".
	ErrNoData = errors.New("document has no content")
	// ErrMalformedDocument wraps every error for content that cannot be parsed.
	ErrMalformedDocument = errors.New("malformed MTConnect document")
	// ErrUnknownIdentityMode is returned for an unsupported identity mode name.
	ErrUnknownIdentityMode = errors.New("unknown identity mode")

	errTrailingContent  = errors.New("unexpected content after root element")
	errInvalidTimestamp = errors.New("invalid timestamp")
)
