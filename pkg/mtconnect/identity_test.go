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
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/mtconnect-flattener/pkg/models"
)

func TestDeterministicIdentity(t *testing.T) {
	t.Parallel()

	key := ItemKey{
		DeviceID:    strPtr("d1"),
		ComponentID: strPtr("c1"),
		DataItemID:  strPtr("exec"),
		Sequence:    strPtr("42"),
		Timestamp:   time.Date(2023, 5, 1, 10, 15, 0, 0, time.UTC),
	}

	id := DeterministicIdentity(models.RecordKindEvent, key)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	assert.Equal(t, id, DeterministicIdentity(models.RecordKindEvent, key))
	assert.NotEqual(t, id, DeterministicIdentity(models.RecordKindSample, key))

	other := key
	other.Sequence = strPtr("43")
	assert.NotEqual(t, id, DeterministicIdentity(models.RecordKindEvent, other))

	shifted := key
	shifted.Timestamp = key.Timestamp.In(time.FixedZone("CET", 3600))
	assert.Equal(t, id, DeterministicIdentity(models.RecordKindEvent, shifted), "same instant, same id")
}

func TestDeterministicIdentityWithoutUUIDs(t *testing.T) {
	t.Parallel()

	ts := time.Date(2023, 5, 1, 10, 15, 0, 0, time.UTC)

	mill1 := ItemKey{DeviceName: strPtr("Mill1"), Component: strPtr("Controller"), DataItemID: strPtr("exec"), Timestamp: ts}
	mill2 := mill1
	mill2.DeviceName = strPtr("Mill2")
	assert.NotEqual(t, DeterministicIdentity(models.RecordKindEvent, mill1), DeterministicIdentity(models.RecordKindEvent, mill2))

	path := mill1
	path.ComponentName = strPtr("path1")
	assert.NotEqual(t, DeterministicIdentity(models.RecordKindEvent, mill1), DeterministicIdentity(models.RecordKindEvent, path))

	named := ItemKey{DeviceName: strPtr("d1"), DataItemID: strPtr("exec"), Timestamp: ts}
	byUUID := ItemKey{DeviceID: strPtr("d1"), DataItemID: strPtr("exec"), Timestamp: ts}
	assert.NotEqual(t, DeterministicIdentity(models.RecordKindEvent, named), DeterministicIdentity(models.RecordKindEvent, byUUID))

	renamed := byUUID
	renamed.DeviceName = strPtr("Mill1")
	assert.Equal(t, DeterministicIdentity(models.RecordKindEvent, byUUID), DeterministicIdentity(models.RecordKindEvent, renamed),
		"the uuid identifies the device when present")
}

func TestDeterministicFlatteningSeparatesDevicesWithoutUUIDs(t *testing.T) {
	t.Parallel()

	raw := `<MTConnectStreams><Streams>` +
		`<DeviceStream name="Mill1"><ComponentStream component="Controller"><Events>` +
		`<Execution dataItemId="exec" timestamp="2023-05-01T10:15:00Z">ACTIVE</Execution></Events></ComponentStream></DeviceStream>` +
		`<DeviceStream name="Mill2"><ComponentStream component="Controller"><Events>` +
		`<Execution dataItemId="exec" timestamp="2023-05-01T10:15:00Z">ACTIVE</Execution></Events></ComponentStream></DeviceStream>` +
		`</Streams></MTConnectStreams>`

	doc, err := Parse([]byte(raw))
	require.NoError(t, err)

	records := NewFlattener(DeterministicIdentity).FlattenEvents(doc)
	require.Len(t, records, 2)
	assert.NotEqual(t, records[0].ID, records[1].ID)
}

func TestIdentityFor(t *testing.T) {
	t.Parallel()

	for _, mode := range []string{"", "random", " Random "} {
		fn, err := IdentityFor(mode)
		require.NoError(t, err)

		a := fn(models.RecordKindEvent, ItemKey{})
		b := fn(models.RecordKindEvent, ItemKey{})
		assert.NotEqual(t, a, b)
	}

	fn, err := IdentityFor("deterministic")
	require.NoError(t, err)
	assert.Equal(t, fn(models.RecordKindEvent, ItemKey{}), fn(models.RecordKindEvent, ItemKey{}))

	_, err = IdentityFor("sequential")
	require.ErrorIs(t, err, ErrUnknownIdentityMode)
}

func TestDeterministicFlatteningIsRepeatable(t *testing.T) {
	t.Parallel()

	doc, err := Parse(readFixture(t, "agent.xml"))
	require.NoError(t, err)

	f := NewFlattener(DeterministicIdentity)

	assert.Equal(t, f.FlattenEvents(doc), f.FlattenEvents(doc))
	assert.Equal(t, f.FlattenSamples(doc), f.FlattenSamples(doc))
}
