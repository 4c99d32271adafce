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

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/mtconnect-flattener/pkg/models"
)

const (
	IdentityModeRandom        = "random"
	IdentityModeDeterministic = "deterministic"
)

// ItemKey carries the fields that identify a telemetry item within a document.
type ItemKey struct {
	DeviceID      *string
	DeviceName    *string
	ComponentID   *string
	Component     *string
	ComponentName *string
	DataItemID    *string
	Sequence      *string
	Timestamp     time.Time
}

// IdentityFunc produces the id of a flat record.
type IdentityFunc func(kind models.RecordKind, key ItemKey) string

var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:mtconnect-flattener:record"))

// RandomIdentity returns a fresh random UUID. Flattening the same document twice
// yields different ids.
func RandomIdentity(models.RecordKind, ItemKey) string {
	return uuid.NewString()
}

// DeterministicIdentity derives a name-based UUID from the item key so that a
// redelivered document reproduces the ids of its first delivery. Devices and
// components are identified by uuid, or by their names when the uuid is absent.
func DeterministicIdentity(kind models.RecordKind, key ItemKey) string {
	name := strings.Join([]string{
		string(kind),
		scope(key.DeviceID, key.DeviceName),
		scope(key.ComponentID, key.Component, key.ComponentName),
		deref(key.DataItemID),
		key.Timestamp.UTC().Format(time.RFC3339Nano),
		deref(key.Sequence),
	}, "\x1f")

	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}

// IdentityFor maps a configured identity mode to its IdentityFunc. The empty mode
// selects random identities.
func IdentityFor(mode string) (IdentityFunc, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", IdentityModeRandom:
		return RandomIdentity, nil
	case IdentityModeDeterministic:
		return DeterministicIdentity, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIdentityMode, mode)
	}
}

// scope names a device or component by uuid, falling back to its names. The
// prefixes keep a uuid from colliding with an equal name.
func scope(id *string, names ...*string) string {
	if id != nil {
		return "uuid:" + *id
	}

	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, deref(n))
	}

	return "name:" + strings.Join(parts, "\x1e")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
