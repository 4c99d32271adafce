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

// Package mtconnect turns MTConnect Streams documents into flat event and sample records.
//
// The pipeline is Parse, then QualifyingStreams per record kind, then a Flattener
// that emits one record per device/component/item triple. Everything here is pure
// and synchronous; delivery of the records lives in the consumer packages.
package mtconnect
