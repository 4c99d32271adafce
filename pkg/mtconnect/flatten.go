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
	"time"

	"github.com/carverauto/mtconnect-flattener/pkg/models"
)

// Flattener denormalizes qualifying device streams into flat records.
type Flattener struct {
	identity IdentityFunc
}

// NewFlattener creates a Flattener. A nil identity selects RandomIdentity.
func NewFlattener(identity IdentityFunc) *Flattener {
	if identity == nil {
		identity = RandomIdentity
	}

	return &Flattener{identity: identity}
}

// FlattenEvents returns one EventRecord per event of every device stream that
// qualifies for event flattening, in document order.
func (f *Flattener) FlattenEvents(doc *models.Document) []models.EventRecord {
	if doc == nil {
		return nil
	}

	devices := QualifyingStreams(doc.Streams, models.RecordKindEvent)
	records := make([]models.EventRecord, 0, CountItems(devices, models.RecordKindEvent))

	for i := range devices {
		ds := &devices[i]

		for j := range ds.Components {
			cs := &ds.Components[j]

			for k := range cs.Events {
				records = append(records, f.eventRecord(ds, cs, &cs.Events[k]))
			}
		}
	}

	return records
}

// FlattenSamples returns one SampleRecord per sample of every device stream that
// qualifies for sample flattening, in document order.
func (f *Flattener) FlattenSamples(doc *models.Document) []models.SampleRecord {
	if doc == nil {
		return nil
	}

	devices := QualifyingStreams(doc.Streams, models.RecordKindSample)
	records := make([]models.SampleRecord, 0, CountItems(devices, models.RecordKindSample))

	for i := range devices {
		ds := &devices[i]

		for j := range ds.Components {
			cs := &ds.Components[j]

			for k := range cs.Samples {
				records = append(records, f.sampleRecord(ds, cs, &cs.Samples[k]))
			}
		}
	}

	return records
}

func (f *Flattener) eventRecord(ds *models.DeviceStream, cs *models.ComponentStream, e *models.Event) models.EventRecord {
	return models.EventRecord{
		ID: f.identity(models.RecordKindEvent, ItemKey{
			DeviceID:      ds.UUID,
			DeviceName:    ds.Name,
			ComponentID:   cs.UUID,
			Component:     cs.Component,
			ComponentName: cs.Name,
			DataItemID:    e.DataItemID,
			Sequence:      e.Sequence,
			Timestamp:     e.Timestamp,
		}),
		HourWindow:      HourWindow(e.Timestamp),
		DeviceName:      clone(ds.Name),
		DeviceID:        clone(ds.UUID),
		Component:       clone(cs.Component),
		ComponentName:   clone(cs.Name),
		ComponentID:     clone(cs.UUID),
		EventDataItemID: clone(e.DataItemID),
		EventTimestamp:  timestamp(e.Timestamp),
		EventName:       clone(e.Name),
		EventSequence:   clone(e.Sequence),
		EventSubtype:    clone(e.SubType),
		EventValue:      clone(e.Value),
	}
}

func (f *Flattener) sampleRecord(ds *models.DeviceStream, cs *models.ComponentStream, s *models.Sample) models.SampleRecord {
	return models.SampleRecord{
		ID: f.identity(models.RecordKindSample, ItemKey{
			DeviceID:      ds.UUID,
			DeviceName:    ds.Name,
			ComponentID:   cs.UUID,
			Component:     cs.Component,
			ComponentName: cs.Name,
			DataItemID:    s.DataItemID,
			Sequence:      s.Sequence,
			Timestamp:     s.Timestamp,
		}),
		HourWindow:              HourWindow(s.Timestamp),
		DeviceName:              clone(ds.Name),
		DeviceID:                clone(ds.UUID),
		Component:               clone(cs.Component),
		ComponentName:           clone(cs.Name),
		ComponentID:             clone(cs.UUID),
		SampleDataItemID:        clone(s.DataItemID),
		SampleTimestamp:         timestamp(s.Timestamp),
		SampleName:              clone(s.Name),
		SampleSequence:          clone(s.Sequence),
		SampleSubtype:           clone(s.SubType),
		SampleDuration:          clone(s.Duration),
		SampleDurationSpecified: clone(s.DurationSpecified),
		SampleRate:              clone(s.SampleRate),
		SampleStatistic:         clone(s.Statistic),
		SampleValue:             clone(s.Value),
	}
}

// clone copies an optional value so records never alias the parsed document.
func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}

	c := *v

	return &c
}

func timestamp(t time.Time) *time.Time {
	return &t
}
